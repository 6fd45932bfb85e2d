package store

import "time"

// Role values for User.Role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ChangeSource values recorded on DocumentVersion (§3, §4.D).
const (
	SourceWeb    = "web"
	SourceAPI    = "api"
	SourceWebDAV = "webdav"
)

// Scope values for ApiKey.Scopes (§3, §4.K).
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// User is an account owner (§3).
type User struct {
	ID           string
	Email        string
	DisplayName  string
	Role         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Vault is a named, slug-addressed workspace owned by a User (§3).
type Vault struct {
	ID          string
	UserID      string
	Name        string
	Slug        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Document is a single Markdown file tracked within a Vault (§3).
type Document struct {
	ID              string
	VaultID         string
	Path            string
	Title           string
	ContentHash     string
	SizeBytes       int64
	Frontmatter     map[string]any
	Tags            []string
	StrippedContent string
	FileCreatedAt   time.Time
	FileModifiedAt  time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DocumentVersion is an append-only audit row for a Document (§3).
type DocumentVersion struct {
	ID           string
	DocumentID   string
	VersionNum   int
	ContentHash  string
	SizeBytes    int64
	ChangeSource string
	ChangedBy    string
	CreatedAt    time.Time
}

// Invitation represents a pending or consumed admin invite (§3).
type Invitation struct {
	ID         string
	Email      string
	Token      string
	InviterID  string
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	CreatedAt  time.Time
}

// ApiKey is an issued API credential (§3, §4.K).
type ApiKey struct {
	ID          string
	UserID      string
	Name        string
	KeyPrefix   string
	KeyHash     string
	Scopes      []string
	VaultID     *string
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	IsActive    bool
	CreatedAt   time.Time
}

// HasScope reports whether the key carries the given scope.
func (k *ApiKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t := parseTime(*s)
	return &t
}
