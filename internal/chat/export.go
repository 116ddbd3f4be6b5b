package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/avelin/chatter/internal/domain"
)

// Artifact is one downloadable export file.
type Artifact struct {
	Filename string
	Content  []byte
}

const (
	transcriptTimeLayout = "02/01/2006 15:04:05"
	exportDateLayout     = "2006-01-02"
	maxFilenameTitle     = 60
)

// exportRecord is the machine-readable artifact shape.
type exportRecord struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	MessageCount int              `json:"message_count"`
	Messages     []domain.Message `json:"messages"`
}

// Export produces the two artifacts for a conversation: a structured JSON
// record and a human-readable transcript. Both come from the same in-memory
// snapshot, so a concurrent mutation cannot produce a partial export.
func (s *Store) Export(id string) (Artifact, Artifact, error) {
	conv := s.Get(id)
	if conv == nil {
		return Artifact{}, Artifact{}, fmt.Errorf("unknown conversation %q", id)
	}
	return exportConversation(conv, time.Now())
}

func exportConversation(conv *domain.Conversation, now time.Time) (Artifact, Artifact, error) {
	record := exportRecord{
		ID:           conv.ID,
		Title:        conv.Title,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
		MessageCount: len(conv.Messages),
		Messages:     conv.Messages,
	}
	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return Artifact{}, Artifact{}, fmt.Errorf("failed to marshal export: %w", err)
	}

	base := fmt.Sprintf("%s_%s", sanitizeFilename(conv.Title), now.Format(exportDateLayout))
	structured := Artifact{Filename: base + ".json", Content: raw}
	transcript := Artifact{Filename: base + "_transcript.txt", Content: []byte(renderTranscript(conv, now))}
	return structured, transcript, nil
}

func renderTranscript(conv *domain.Conversation, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversation : %s\n", conv.Title)
	fmt.Fprintf(&b, "Exportée le %s\n\n", now.Local().Format(transcriptTimeLayout))

	for _, m := range conv.Messages {
		fmt.Fprintf(&b, "[%s] %s :\n%s\n", m.Timestamp.Local().Format(transcriptTimeLayout), speakerLabel(m.Role), m.Content)
		if len(m.Sources) > 0 {
			texts := make([]string, 0, len(m.Sources))
			for _, src := range m.Sources {
				texts = append(texts, src.Text)
			}
			fmt.Fprintf(&b, "Sources : %s\n", strings.Join(texts, ", "))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func speakerLabel(role domain.MessageRole) string {
	switch role {
	case domain.RoleUser:
		return "Vous"
	case domain.RoleAssistant:
		return "Assistant"
	default:
		return "Système"
	}
}

// sanitizeFilename reduces a title to a filesystem-safe name: lowercase,
// [a-z0-9._-] kept, everything else collapsed to a single underscore.
func sanitizeFilename(title string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	runes := []rune(name)
	if len(runes) > maxFilenameTitle {
		name = string(runes[:maxFilenameTitle])
	}
	if name == "" {
		name = "conversation"
	}
	return name
}
