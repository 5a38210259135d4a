package document

import (
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/tracyhatemice/mail2md/internal/message"
)

// maxNameBytes keeps "{timestamp}_{subject}.md" under common filesystem limits.
const maxNameBytes = 200

var nameReplacer = strings.NewReplacer(
	`\`, "_", "/", "_", "*", "_", "?", "_", ":", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// SafeName replaces characters that are not allowed in file names with "_"
// and truncates the result to maxNameBytes on a rune boundary.
func SafeName(s string) string {
	s = nameReplacer.Replace(s)
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, s)

	if len(s) <= maxNameBytes {
		return s
	}
	cut := 0
	for i := range s {
		if i > maxNameBytes {
			break
		}
		cut = i
	}
	return s[:cut]
}

func attachmentFiles(atts []message.Attachment) []File {
	if len(atts) == 0 {
		return nil
	}
	used := make(map[string]struct{}, len(atts))
	files := make([]File, 0, len(atts))
	for i, a := range atts {
		files = append(files, File{
			Name:    uniqueName(attachmentName(a, i), used),
			Payload: a.Payload,
		})
	}
	return files
}

// attachmentName reduces a sender-supplied filename to a safe base name.
func attachmentName(a message.Attachment, index int) string {
	name := path.Base(strings.ReplaceAll(a.Filename, `\`, "/"))
	switch name {
	case ".", "..", "/":
		name = ""
	}
	name = strings.TrimSpace(SafeName(name))
	if name != "" {
		return name
	}

	name = fmt.Sprintf("attachment-%d", index+1)
	if exts, err := mime.ExtensionsByType(a.ContentType); err == nil && len(exts) > 0 {
		name += exts[0]
	}
	return name
}

func uniqueName(name string, used map[string]struct{}) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for i := 1; ; i++ {
		if _, taken := used[candidate]; !taken {
			used[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
}
