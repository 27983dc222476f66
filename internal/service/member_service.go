package service

import (
	"context"
	"errors"
	"fmt"

	"clubdesk/internal/domain"
)

// MemberService resolves principals to member profiles and lists members
// for the recipient picker.
type MemberService struct {
	members domain.MemberRepository
}

func NewMemberService(members domain.MemberRepository) *MemberService {
	return &MemberService{members: members}
}

// ResolvePrincipal maps an authenticated user id to a Principal. A user with
// no linked member profile is a valid principal with a nil MemberID.
func (s *MemberService) ResolvePrincipal(ctx context.Context, userID string) (domain.Principal, error) {
	p := domain.Principal{UserID: userID}
	m, err := s.members.GetByUserID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("resolve principal: %w", err)
	}
	id := m.ID
	p.MemberID = &id
	p.IsAdmin = m.IsAdmin
	return p, nil
}

func (s *MemberService) List(ctx context.Context) ([]*domain.Member, error) {
	return s.members.ListAll(ctx)
}
