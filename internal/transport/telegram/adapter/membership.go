package adapter

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"snoozebot/internal/mute"
)

// Role names understood by Membership.
const (
	RoleRestricted mute.RoleID = "restricted"
	RoleAdmin      mute.RoleID = "admin"
)

// chatAPI is the subset of *tele.Bot that Membership needs.
type chatAPI interface {
	ChatMemberOf(chat, user tele.Recipient) (*tele.ChatMember, error)
	Restrict(chat *tele.Chat, member *tele.ChatMember) error
	Promote(chat *tele.Chat, member *tele.ChatMember) error
}

// Membership maps roles onto Telegram chat permissions:
// "restricted" removes every send right, "admin" is an administrator
// promotion with moderation rights.
type Membership struct {
	api  chatAPI
	chat *tele.Chat
}

var _ mute.Membership = (*Membership)(nil)

func NewMembership(bot *tele.Bot, chatID int64) *Membership {
	return newMembership(bot, chatID)
}

func newMembership(api chatAPI, chatID int64) *Membership {
	return &Membership{api: api, chat: &tele.Chat{ID: chatID}}
}

func elevatedRights() tele.Rights {
	return tele.Rights{
		CanDeleteMessages:  true,
		CanPinMessages:     true,
		CanInviteUsers:     true,
		CanRestrictMembers: true,
	}
}

func (m *Membership) member(ctx context.Context, memberID int64) (*tele.ChatMember, error) {
	var cm *tele.ChatMember
	err := callCtx(ctx, func() error {
		var err error
		cm, err = m.api.ChatMemberOf(m.chat, &tele.User{ID: memberID})
		return err
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return cm, nil
}

func (m *Membership) HasRole(ctx context.Context, memberID int64, role mute.RoleID) (bool, error) {
	cm, err := m.member(ctx, memberID)
	if err != nil {
		return false, err
	}
	switch role {
	case RoleRestricted:
		return cm.Role == tele.Restricted && !cm.CanSendMessages, nil
	case RoleAdmin:
		return cm.Role == tele.Administrator || cm.Role == tele.Creator, nil
	default:
		return false, unknownRole(role)
	}
}

func (m *Membership) GrantRole(ctx context.Context, memberID int64, role mute.RoleID) error {
	user := &tele.User{ID: memberID}
	switch role {
	case RoleRestricted:
		return mapErr(callCtx(ctx, func() error {
			return m.api.Restrict(m.chat, &tele.ChatMember{User: user, Rights: tele.NoRights(), RestrictedUntil: tele.Forever()})
		}))
	case RoleAdmin:
		held, err := m.HasRole(ctx, memberID, role)
		if err != nil || held {
			return err
		}
		return mapErr(callCtx(ctx, func() error {
			return m.api.Promote(m.chat, &tele.ChatMember{User: user, Rights: elevatedRights()})
		}))
	default:
		return unknownRole(role)
	}
}

func (m *Membership) RevokeRole(ctx context.Context, memberID int64, role mute.RoleID) error {
	user := &tele.User{ID: memberID}
	switch role {
	case RoleRestricted:
		return mapErr(callCtx(ctx, func() error {
			return m.api.Restrict(m.chat, &tele.ChatMember{User: user, Rights: tele.NoRestrictions(), RestrictedUntil: tele.Forever()})
		}))
	case RoleAdmin:
		return mapErr(callCtx(ctx, func() error {
			return m.api.Promote(m.chat, &tele.ChatMember{User: user, Rights: tele.NoRights()})
		}))
	default:
		return unknownRole(role)
	}
}

func (m *Membership) ResolveMember(ctx context.Context, memberID int64) (mute.Member, error) {
	cm, err := m.member(ctx, memberID)
	if err != nil {
		return mute.Member{}, err
	}
	out := mute.Member{ID: memberID}
	if cm.User != nil {
		out.Username = cm.User.Username
		out.Name = displayName(cm.User)
	}
	return out, nil
}

func unknownRole(role mute.RoleID) error {
	return fmt.Errorf("%w: unknown role %q", mute.ErrInvalidArgument, role)
}

// mapErr tags "no such user" replies with mute.ErrMemberNotFound. Other errors
// pass through; the scheduler classifies them as role API failures.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"user not found", "member not found", "participant_id_invalid", "user_id_invalid"} {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %w", mute.ErrMemberNotFound, err)
		}
	}
	return err
}
