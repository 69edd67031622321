package session

import "fmt"

const (
	messageBusy              = ":hourglass: **Another file is being transcribed. Please try again when it finishes.**"
	messageFailedFormat      = ":warning: **%s**"
	messageTooLargeFormat    = ":warning: **`%s` is larger than the %d MB limit.**"
	messageAttachmentTitle   = ":page_facing_up:  **Transcript of `%s`**"
	messageEmptyTranscript   = ":page_facing_up:  **No speech was recognized in `%s`.**"
	messageElapsedLineFormat = "-# Transcribed in %s"
)

func failedMessage(reason string) string {
	return fmt.Sprintf(messageFailedFormat, reason)
}

func tooLargeMessage(name string, limitBytes int64) string {
	return fmt.Sprintf(messageTooLargeFormat, name, limitBytes/(1024*1024))
}
