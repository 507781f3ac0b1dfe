package discord

import (
	"github.com/bwmarrin/discordgo"

	"spectreon/internal/registry"
)

// ResolveActor builds an ActorContext for a user outside any inbound event,
// e.g. when a scheduled command fires on the creator's behalf. Privilege is
// whatever the user holds right now, not what they held at schedule time.
func ResolveActor(s *discordgo.Session, guildID, userID string) registry.ActorContext {
	username := ""
	if member, err := s.State.Member(guildID, userID); err == nil && member != nil && member.User != nil {
		username = member.User.Username
	} else if u, err := s.User(userID); err == nil && u != nil {
		username = u.Username
	}
	return registry.ActorContext{
		GuildID:      guildID,
		UserID:       userID,
		Username:     username,
		IsGuildAdmin: isGuildAdmin(s, guildID, nil, userID),
	}
}

// isGuildAdmin reports whether the user counts as privileged for a guild:
// guild owner, or any role carrying Administrator or Manage Server.
func isGuildAdmin(s *discordgo.Session, guildID string, member *discordgo.Member, userID string) bool {
	if guildID == "" || userID == "" {
		return false
	}

	guild, err := s.State.Guild(guildID)
	if err != nil || guild == nil {
		guild, err = s.Guild(guildID)
		if err != nil || guild == nil {
			return false
		}
	}
	if userID == guild.OwnerID {
		return true
	}

	if member == nil {
		member, err = s.State.Member(guildID, userID)
		if err != nil || member == nil {
			member, err = s.GuildMember(guildID, userID)
			if err != nil || member == nil {
				return false
			}
		}
	}

	const privileged = discordgo.PermissionAdministrator | discordgo.PermissionManageGuild
	for _, roleID := range member.Roles {
		if role, _ := s.State.Role(guildID, roleID); role != nil {
			if role.Permissions&privileged != 0 {
				return true
			}
		}
	}
	return false
}
