package transcriber

import (
	"fmt"
	"path/filepath"

	"github.com/foxseedlab/localscribe/internal/config"
	"github.com/foxseedlab/localscribe/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transcriber.Engine, error) {
		c := do.MustInvoke[*config.Config](i)
		switch c.TranscriptionEngine {
		case config.EngineCloudSpeech:
			return NewCloudSpeechEngine(CloudSpeechConfig{
				ProjectID:       c.GoogleCloudProjectID,
				CredentialsJSON: c.GoogleCloudCredentialsJSON,
				Language:        c.TranscribeLanguage,
				Location:        c.GoogleCloudSpeechLocation,
				ModelFast:       c.GoogleCloudSpeechModelFast,
				ModelAccurate:   c.GoogleCloudSpeechModelAccurate,
			}), nil
		case config.EngineWhisperCpp:
			return NewWhisperCppEngine(WhisperConfig{
				CLIPath:       c.WhisperCLIPath,
				ModelDir:      c.WhisperModelDir,
				ModelFast:     c.WhisperModelFast,
				ModelAccurate: c.WhisperModelAccurate,
				Language:      c.TranscribeLanguage,
				Threads:       c.WhisperThreads,
				WorkDir:       filepath.Join(c.ScratchDir, "whisper"),
			}), nil
		}
		return nil, fmt.Errorf("unknown transcription engine %q", c.TranscriptionEngine)
	})
}
