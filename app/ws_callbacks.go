package snaptalk

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/piyawat22/snaptalk/core"
)

// onUserOnline tells the user's friends they came online, and tells the user
// which of their friends are already online. Pushes are best effort.
func (a *App) onUserOnline(ctx context.Context, username string) {
	friends, err := a.friendStore.ListFriends(ctx, username)
	if err != nil {
		a.logger.Error(fmt.Sprintf("ListFriends: %v", err))
		return
	}

	a.pushToUsers(core.EventUserOnline, core.PresencePayload{Username: username}, friends)

	online := lo.Filter(friends, func(friend string, _ int) bool {
		return a.registry.Online(friend)
	})
	for _, friend := range online {
		a.pushToUsers(core.EventUserOnline, core.PresencePayload{Username: friend}, []string{username})
	}
}

func (a *App) onUserOffline(ctx context.Context, username string) {
	friends, err := a.friendStore.ListFriends(ctx, username)
	if err != nil {
		a.logger.Error(fmt.Sprintf("ListFriends: %v", err))
		return
	}

	a.pushToUsers(core.EventUserOffline, core.PresencePayload{Username: username}, friends)
}

func (a *App) pushToUsers(eventType string, payload any, usernames []string) {
	e, err := core.NewEvent(eventType, payload)
	if err != nil {
		a.logger.Error(fmt.Sprintf("%s event: %v", eventType, err))
		return
	}
	for _, username := range usernames {
		handle, ok := a.registry.Lookup(username)
		if !ok {
			continue
		}
		if err := handle.Push(e); err != nil {
			a.logger.Debug(fmt.Sprintf("push %s to %s: %v", eventType, username, err))
		}
	}
}
