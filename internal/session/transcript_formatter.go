package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/foxseedlab/localscribe/internal/orchestrator"
)

// Discord rejects messages over 2000 characters; leave room for the header lines.
const inlineTranscriptLimit = 1800

const transcriptFilename = "transcript.txt"

type transcriptReply struct {
	Content  string
	FileBody []byte
}

func buildTranscriptReply(displayName string, done orchestrator.Completed) transcriptReply {
	text := strings.TrimSpace(done.Text)
	elapsed := fmt.Sprintf(messageElapsedLineFormat, formatElapsed(time.Duration(done.ElapsedMs)*time.Millisecond))
	if text == "" {
		return transcriptReply{Content: fmt.Sprintf(messageEmptyTranscript, displayName) + "\n" + elapsed}
	}
	title := fmt.Sprintf(messageAttachmentTitle, displayName)
	if len([]rune(text)) <= inlineTranscriptLimit {
		return transcriptReply{Content: strings.Join([]string{title, text, elapsed}, "\n")}
	}
	return transcriptReply{
		Content:  title + "\n" + elapsed,
		FileBody: []byte(text + "\n"),
	}
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
