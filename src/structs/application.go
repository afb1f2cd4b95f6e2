package structs

type Application struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Flags uint   `json:"flags,omitempty"`
}
