package discord

import (
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bwmarrin/discordgo"
)

// syncCommands reconciles a guild's slash commands with the registry:
// obsolete ones are deleted, and only commands whose definition hash changed
// are re-pushed, keeping startup well under the registration rate limit.
func (b *Bot) syncCommands(guildID string) error {
	appID, err := b.appID()
	if err != nil {
		return err
	}

	remote, _ := b.dg.ApplicationCommands(appID, guildID)
	local := b.reg.SlashDefinitions()

	localNames := make(map[string]struct{}, len(local))
	for _, d := range local {
		localNames[d.Name] = struct{}{}
	}

	hashes := loadCommandHashes(guildID)

	for _, rc := range remote {
		if _, keep := localNames[rc.Name]; keep {
			continue
		}
		log.Printf("[INFO] [%s] Deleting obsolete command: %s", guildID, rc.Name)
		if err := b.dg.ApplicationCommandDelete(appID, guildID, rc.ID); err != nil {
			log.Printf("[ERR] [%s] Failed to delete %s: %v", guildID, rc.Name, err)
		} else {
			delete(hashes, rc.Name)
		}
	}

	var changed []*discordgo.ApplicationCommand
	for _, d := range local {
		h := hashCommand(d)
		if hashes[d.Name] != h {
			changed = append(changed, d)
			hashes[d.Name] = h
		}
	}

	if len(changed) > 0 {
		log.Printf("[INFO] [%s] Registering %d changed command(s)...", guildID, len(changed))
		for _, d := range changed {
			if _, err := b.dg.ApplicationCommandCreate(appID, guildID, d); err != nil {
				log.Printf("[ERR] [%s] Failed to register %s: %v", guildID, d.Name, err)
			} else {
				log.Printf("[DONE] [%s] Registered: %s", guildID, d.Name)
			}
			time.Sleep(25 * time.Millisecond) // stay well under Discord's rate limit
		}
	}

	saveCommandHashes(guildID, hashes)
	return nil
}

// appID returns the bot's application ID, fetching from Discord if not cached
// in State.
func (b *Bot) appID() (string, error) {
	if id := b.dg.State.User.ID; id != "" {
		return id, nil
	}
	u, err := b.dg.User("@me")
	if err != nil {
		return "", fmt.Errorf("failed to fetch bot user: %w", err)
	}
	return u.ID, nil
}

// --- Command hash cache ---

func commandHashPath(guildID string) string {
	return filepath.Join("data", "commands", guildID+".json")
}

func loadCommandHashes(guildID string) map[string]string {
	out := make(map[string]string)
	if data, err := os.ReadFile(commandHashPath(guildID)); err == nil {
		_ = json.Unmarshal(data, &out)
	}
	return out
}

func saveCommandHashes(guildID string, hashes map[string]string) {
	path := commandHashPath(guildID)
	_ = os.MkdirAll(filepath.Dir(path), 0755)
	if data, err := json.MarshalIndent(hashes, "", "  "); err == nil {
		_ = os.WriteFile(path, data, 0644)
	}
}

// hashCommand returns a deterministic SHA-1 of a command's stable fields, so
// unchanged definitions are not re-registered.
func hashCommand(c *discordgo.ApplicationCommand) string {
	stable := map[string]interface{}{
		"name":        c.Name,
		"description": c.Description,
	}
	if len(c.Options) > 0 {
		stable["options"] = normalizeOptions(c.Options)
	}
	data, _ := json.Marshal(stable)
	sum := sha1.Sum(data)
	return fmt.Sprintf("%x", sum)
}

func normalizeOptions(opts []*discordgo.ApplicationCommandOption) []map[string]interface{} {
	out := make([]map[string]interface{}, len(opts))
	for i, o := range opts {
		entry := map[string]interface{}{
			"name":        o.Name,
			"description": o.Description,
			"type":        o.Type,
			"required":    o.Required,
		}
		if len(o.Choices) > 0 {
			choices := make([]map[string]interface{}, len(o.Choices))
			for j, ch := range o.Choices {
				choices[j] = map[string]interface{}{"name": ch.Name, "value": ch.Value}
			}
			entry["choices"] = choices
		}
		if len(o.Options) > 0 {
			entry["options"] = normalizeOptions(o.Options)
		}
		out[i] = entry
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i]["name"].(string) < out[j]["name"].(string)
	})
	return out
}
