// Package tagparse extracts the inline control tags a narrative model embeds
// in its replies: media commands (<draw>, <video>), audio cues, game state
// blocks, session titles, and file blocks. All functions are pure text
// transformations; acting on the extracted data is the caller's job.
package tagparse

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/mutsucloud/otogi/pkg/types"
)

var (
	videoRE    = regexp.MustCompile(`(?s)<video>(.*?)</video>`)
	drawRE     = regexp.MustCompile(`(?s)<draw>(.*?)</draw>`)
	videoLogRE = regexp.MustCompile(`(?s)<video_log>(.*?)</video_log>`)
	drawLogRE  = regexp.MustCompile(`(?s)<draw_log>(.*?)</draw_log>`)

	audioRE     = regexp.MustCompile(`<audio>(.*?)</audio>`)
	gameStateRE = regexp.MustCompile(`(?s)<game_state>(.*?)</game_state>`)
	titleRE     = regexp.MustCompile(`<title>(.*?)</title>`)
	fileRE      = regexp.MustCompile(`(?s)<file name="(.*?)">(.*?)</file>`)

	jsonFenceRE = regexp.MustCompile("```json|```")
)

// DefaultOutfitID is assumed when a media command names no outfit.
const DefaultOutfitID = "casual"

// ParseMediaCommand finds the first media command in content. Video tags win
// over draw tags when both are present. Returns nil when content carries no
// command. Already-resolved _log tags are never matched.
func ParseMediaCommand(content string) *types.MediaCommand {
	if m := videoRE.FindStringSubmatch(content); m != nil {
		return parseInner(m[1], types.MediaVideo)
	}
	if m := drawRE.FindStringSubmatch(content); m != nil {
		return parseInner(m[1], types.MediaImage)
	}
	return nil
}

// parseInner decodes the tag body as JSON, tolerating markdown code fences
// and the field aliases different models emit. A body that is not valid JSON
// is treated as a literal prompt rather than rejected.
func parseInner(raw string, kind types.MediaKind) *types.MediaCommand {
	cleaned := strings.TrimSpace(jsonFenceRE.ReplaceAllString(raw, ""))

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return &types.MediaCommand{
			Trigger:     true,
			Kind:        kind,
			Description: raw,
			OutfitID:    DefaultOutfitID,
			Parameters:  map[string]any{},
		}
	}

	cmd := &types.MediaCommand{
		Trigger:     true,
		Kind:        kind,
		Description: firstString(data, "description", "prompt"),
		CharacterID: firstStringOrElement(data, "charId", "character", "id"),
		OutfitID:    firstString(data, "outfitId"),
		Model:       firstString(data, "model"),
		Parameters:  map[string]any{},
	}
	cmd.NegativePrompt = firstString(data, "negativePrompt", "neg")
	if cmd.OutfitID == "" {
		cmd.OutfitID = DefaultOutfitID
	}
	if params, ok := data["parameters"].(map[string]any); ok {
		cmd.Parameters = params
	}
	return cmd
}

// Fingerprint returns the full first tag occurrence for kind, used later to
// locate the exact text to replace once the media resolves. Empty when no
// tag of that kind is present.
func Fingerprint(content string, kind types.MediaKind) string {
	re := drawRE
	if kind == types.MediaVideo {
		re = videoRE
	}
	return re.FindString(content)
}

// StripMediaTags removes all pending and resolved media tags. Used when
// building provider context so the model never sees its own raw commands.
func StripMediaTags(content string) string {
	content = drawRE.ReplaceAllString(content, "")
	content = drawLogRE.ReplaceAllString(content, "")
	content = videoRE.ReplaceAllString(content, "")
	content = videoLogRE.ReplaceAllString(content, "")
	return strings.TrimSpace(content)
}

// mediaAltText returns the markdown alt text for a resolved media reference.
func mediaAltText(kind types.MediaKind) string {
	if kind == types.MediaVideo {
		return "Video"
	}
	return "Generated"
}

// SpliceMediaResult replaces the fingerprint occurrence in content with its
// resolved _log form followed by a markdown media reference. The second
// return reports whether the fingerprint was found; when false, content is
// returned unchanged and the caller should fall back to AppendMediaResult on
// the final message.
func SpliceMediaResult(content, fingerprint string, kind types.MediaKind, url string) (string, bool) {
	if fingerprint == "" || !strings.Contains(content, fingerprint) {
		return content, false
	}
	var logTag string
	if kind == types.MediaVideo {
		logTag = strings.Replace(strings.Replace(fingerprint, "<video>", "<video_log>", 1), "</video>", "</video_log>", 1)
	} else {
		logTag = strings.Replace(strings.Replace(fingerprint, "<draw>", "<draw_log>", 1), "</draw>", "</draw_log>", 1)
	}
	replacement := logTag + "\n\n![" + mediaAltText(kind) + "](" + url + ")\n"
	return strings.Replace(content, fingerprint, replacement, 1), true
}

// AppendMediaResult appends a markdown media reference to content. Fallback
// for when the originating tag can no longer be located.
func AppendMediaResult(content string, kind types.MediaKind, url string) string {
	return content + "\n\n![" + mediaAltText(kind) + "](" + url + ")\n"
}

// audioCue is the JSON body of an <audio> tag.
type audioCue struct {
	TrackID string `json:"trackId"`
}

// ExtractAudio pulls the first audio cue out of content. On a malformed body
// the tag is left in place, matching how a reader would still see it.
func ExtractAudio(content string) (trackID string, rest string) {
	m := audioRE.FindStringSubmatch(content)
	if m == nil {
		return "", content
	}
	var cue audioCue
	if err := json.Unmarshal([]byte(m[1]), &cue); err != nil {
		return "", content
	}
	return cue.TrackID, audioRE.ReplaceAllString(content, "")
}

// ExtractTitle pulls the first title tag out of content. The caller decides
// whether to adopt the title; rest has the tag removed either way, so callers
// that keep the old title should keep the original content too.
func ExtractTitle(content string) (title string, rest string) {
	m := titleRE.FindStringSubmatch(content)
	if m == nil {
		return "", content
	}
	return m[1], strings.TrimSpace(titleRE.ReplaceAllString(content, ""))
}

// FileBlock is one <file name="...">...</file> block lifted from a reply.
type FileBlock struct {
	Name     string
	Language string
	Content  string
	// Inline reports whether the block is a prose document rendered in place
	// rather than stored in the session's code repository.
	Inline bool
}

// inlineExts are document extensions rendered inline as fenced markdown.
var inlineExts = map[string]bool{"txt": true, "md": true, "markdown": true, "log": true}

// ExtractFiles lifts file blocks out of content. Document blocks (txt, md,
// markdown, log) are rewritten in place as fenced markdown; everything else
// is removed from the text and returned for the code repository.
func ExtractFiles(content string) (rest string, files []types.CodeFile) {
	rest = fileRE.ReplaceAllStringFunc(content, func(match string) string {
		m := fileRE.FindStringSubmatch(match)
		name, body := m[1], m[2]
		ext := ""
		if idx := strings.LastIndex(name, "."); idx >= 0 {
			ext = strings.ToLower(name[idx+1:])
		}
		if inlineExts[ext] {
			return "\n**[Document: " + name + "]**\n```" + ext + "\n" + body + "\n```\n"
		}
		lang := ext
		if lang == "" {
			lang = "text"
		}
		files = append(files, types.CodeFile{
			Name:     name,
			Language: lang,
			Content:  strings.TrimSpace(body),
		})
		return ""
	})
	return strings.TrimSpace(rest), files
}

// trimReplace removes all matches of re from content and trims the result.
func trimReplace(content string, re *regexp.Regexp) string {
	return strings.TrimSpace(re.ReplaceAllString(content, ""))
}

// firstString returns the first non-empty string value among keys.
func firstString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := data[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// firstStringOrElement is firstString, additionally unwrapping one-element
// arrays that some models emit where a scalar is expected.
func firstStringOrElement(data map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := data[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case []any:
			if len(v) > 0 {
				if s, ok := v[0].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}
