// Package channels authorizes subscriptions for the broker-backed
// broadcaster transport. It is consulted only when that transport is
// configured instead of direct streaming; the polling path never goes
// through here.
package channels

import (
	"context"
	"regexp"
	"strconv"

	"github.com/google/uuid"

	"github.com/jinyphp/chat-sub002/internal/models"
	"github.com/jinyphp/chat-sub002/internal/store"
)

// Channel name patterns. Room-scoped channels carry a numeric room id, the
// user channel carries the subscriber's own uuid.
var (
	roomChannelRe     = regexp.MustCompile(`^chat-room\.(\d+)$`)
	userChannelRe     = regexp.MustCompile(`^chat-user\.([0-9a-fA-F-]{36})$`)
	presenceChannelRe = regexp.MustCompile(`^chat-presence\.(\d+)$`)
	typingChannelRe   = regexp.MustCompile(`^chat-typing\.(\d+)$`)
)

// PublicProfile is the minimal member info disclosed to presence tracking on
// a successful authorization. Nothing else about the room leaves this
// package on failure.
type PublicProfile struct {
	UserUUID    string `json:"user_uuid"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	Role        string `json:"role"`
}

// Authorizer validates channel subscription requests against the registry.
type Authorizer struct {
	registry store.Registry
}

// NewAuthorizer creates a channel authorizer.
func NewAuthorizer(registry store.Registry) *Authorizer {
	return &Authorizer{registry: registry}
}

// Authorize validates a subscription to channel for identity. It returns the
// subscriber's public profile and true on success, or a zero profile and
// false on any failure; the rejection carries no partial room state.
func (a *Authorizer) Authorize(ctx context.Context, identity *models.Identity, channel string) (PublicProfile, bool) {
	if identity == nil {
		return PublicProfile{}, false
	}

	if m := userChannelRe.FindStringSubmatch(channel); m != nil {
		// A user may only subscribe to their own channel.
		target, err := uuid.Parse(m[1])
		if err != nil || target != identity.UUID {
			return PublicProfile{}, false
		}
		return PublicProfile{
			UserUUID:    identity.UUID.String(),
			DisplayName: identity.Name,
			Role:        models.RoleMember,
		}, true
	}

	var roomID int64
	switch {
	case roomChannelRe.MatchString(channel):
		roomID = channelRoomID(roomChannelRe, channel)
	case presenceChannelRe.MatchString(channel):
		roomID = channelRoomID(presenceChannelRe, channel)
	case typingChannelRe.MatchString(channel):
		roomID = channelRoomID(typingChannelRe, channel)
	default:
		return PublicProfile{}, false
	}

	room, err := a.registry.GetRoom(ctx, roomID)
	if err != nil || room == nil || room.Status != models.RoomActive {
		return PublicProfile{}, false
	}

	p, err := a.registry.GetParticipant(ctx, roomID, identity.UUID)
	if err != nil || !p.CanPost() {
		return PublicProfile{}, false
	}

	return PublicProfile{
		UserUUID:    p.UserUUID.String(),
		DisplayName: p.DisplayName,
		Avatar:      p.Avatar,
		Role:        p.Role,
	}, true
}

func channelRoomID(re *regexp.Regexp, channel string) int64 {
	m := re.FindStringSubmatch(channel)
	id, _ := strconv.ParseInt(m[1], 10, 64)
	return id
}
