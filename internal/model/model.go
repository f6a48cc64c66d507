package model

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Role     Role   `json:"role,omitempty"`
}

func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

type Todo struct {
	ID          string    `json:"id"`
	Item        string    `json:"item"`
	Description string    `json:"description,omitempty"`
	IsDone      bool      `json:"isDone"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// User is only populated in admin listings.
	User *User `json:"user,omitempty"`
}

type AuthResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Filters narrows a todo listing. A nil IsDone means "no filter".
type Filters struct {
	IsDone *bool `json:"isDone,omitempty"`

	// Search is kept in saved list state but the API has no text search;
	// it is never sent.
	Search string `json:"search,omitempty"`
}

type OrderRule string

const (
	OrderAsc  OrderRule = "asc"
	OrderDesc OrderRule = "desc"
)

const OrderKeyCreatedAt = "createdAt"

type PaginationParams struct {
	Page      int       `json:"page"`
	Limit     int       `json:"limit"`
	OrderKey  string    `json:"orderKey,omitempty"`
	OrderRule OrderRule `json:"orderRule"`
}

type TodosResponse struct {
	Entries   []Todo `json:"entries"`
	TotalData int    `json:"totalData"`
	TotalPage int    `json:"totalPage"`
}

// TotalPages returns ceil(total/limit). A non-positive limit yields 0.
func TotalPages(total, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Registration struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type NewTodo struct {
	Item string `json:"item"`
}

// MarkAction is the body value for PUT /todos/:id/mark.
type MarkAction string

const (
	MarkDone   MarkAction = "DONE"
	MarkUndone MarkAction = "UNDONE"
)

// ToggleAction returns the action that inverts the todo's known state.
func (t Todo) ToggleAction() MarkAction {
	if t.IsDone {
		return MarkUndone
	}
	return MarkDone
}

// StatusLabel maps a filter onto the labels used by list views.
func StatusLabel(f Filters) string {
	switch {
	case f.IsDone == nil:
		return "all"
	case *f.IsDone:
		return "completed"
	default:
		return "pending"
	}
}

// ParseStatus is the inverse of StatusLabel.
func ParseStatus(s string) (*bool, bool) {
	switch s {
	case "", "all":
		return nil, true
	case "completed", "done":
		v := true
		return &v, true
	case "pending", "open":
		v := false
		return &v, true
	default:
		return nil, false
	}
}
