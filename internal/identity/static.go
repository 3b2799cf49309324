package identity

import "context"

// StaticValidator maps fixed tokens to subjects. It exists for local
// development and tests and is only ever constructed from explicit
// configuration at startup; nothing in the authorization path can reach
// it through a flag.
type StaticValidator struct {
	subjects map[string]*Subject
}

// NewStaticValidator creates a validator over a fixed token table
func NewStaticValidator(subjects map[string]*Subject) *StaticValidator {
	if subjects == nil {
		subjects = make(map[string]*Subject)
	}
	return &StaticValidator{subjects: subjects}
}

// ValidateToken looks the token up in the table
func (v *StaticValidator) ValidateToken(ctx context.Context, token string) (*Subject, error) {
	subject, ok := v.subjects[token]
	if !ok {
		return nil, ErrUnauthenticated
	}
	return subject, nil
}
