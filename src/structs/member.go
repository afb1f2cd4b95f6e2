package structs

type Member struct {
	User        User     `json:"user,omitempty"`
	Nick        string   `json:"nick,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	JoinedAt    string   `json:"joined_at,omitempty"`
	Permissions string   `json:"permissions,omitempty"`
	Pending     bool     `json:"pending,omitempty"`
}
