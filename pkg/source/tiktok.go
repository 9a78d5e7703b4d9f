package source

import "context"

// TikTok produces trending video captions as plain text. Sample data only.
type TikTok struct {
	topics []string
}

var sampleTikTokCaptions = []string{
	"tiktok tour of inherited house makeover",
	"downsizing parents home emotional tips",
	"before and after estate cleanout",
}

// NewTikTok creates a new TikTok adapter.
func NewTikTok(topics []string) *TikTok {
	return &TikTok{topics: topics}
}

func (t *TikTok) Name() SourceType { return SourceTikTok }

func (t *TikTok) Collect(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(t.topics) > 0 {
		return Texts(t.topics...), nil
	}
	return Texts(sampleTikTokCaptions...), nil
}
