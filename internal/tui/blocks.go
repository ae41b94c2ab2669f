package tui

import (
	"strings"
	"time"

	"github.com/0x6d61/codepilot/pkg/schema"
)

// BlockType identifies the kind of display block.
type BlockType int

const (
	BlockUser     BlockType = iota // highlighted user prompt
	BlockThought                   // progress message from the orchestrator
	BlockPlan                      // markdown-rendered plan text
	BlockTool                      // action + folded result
	BlockError                     // run-ending error
	BlockSystem                    // local message from the TUI itself
	BlockQuestion                  // ask_user question waiting for an answer
)

// DisplayBlock is a grouped rendering unit for the log viewport.
// Each block type uses a subset of fields.
type DisplayBlock struct {
	Type      BlockType
	RunID     string
	CreatedAt time.Time

	// BlockUser / BlockThought / BlockPlan / BlockError / BlockSystem
	Text string

	// BlockTool fields
	Action    string
	Output    []string
	Completed bool
	Failed    bool

	// BlockQuestion fields
	QuestionID string
	Answered   bool
	Answer     string
}

// blockLog は Event ストリームを DisplayBlock の列に畳み込む。
// action と直後の result は1つの BlockTool にまとめる。
type blockLog struct {
	blocks  []*DisplayBlock
	lastSeq uint64
}

// apply は e を反映する。再購読などで届いた古い Seq は無視し、反映したかを返す。
func (l *blockLog) apply(e schema.Event) bool {
	if e.Seq != 0 && e.Seq <= l.lastSeq {
		return false
	}
	if e.Seq != 0 {
		l.lastSeq = e.Seq
	}

	switch e.Kind {
	case schema.KindUser:
		l.add(&DisplayBlock{Type: BlockUser, Text: e.Content}, e)
	case schema.KindThought:
		l.add(&DisplayBlock{Type: BlockThought, Text: e.Content}, e)
	case schema.KindPlan:
		l.add(&DisplayBlock{Type: BlockPlan, Text: e.Content}, e)
	case schema.KindAction:
		l.add(&DisplayBlock{Type: BlockTool, Action: unwrapTag(e.Content, "[ACTION: ")}, e)
	case schema.KindResult:
		body := unwrapTag(e.Content, "[RESULT: ")
		if b := l.openTool(e.RunID); b != nil {
			b.Output = splitOutput(body)
			b.Completed = true
			b.Failed = strings.HasPrefix(body, "error:")
			return true
		}
		// action を取りこぼした result は単独のブロックにする
		l.add(&DisplayBlock{Type: BlockTool, Output: splitOutput(body), Completed: true,
			Failed: strings.HasPrefix(body, "error:")}, e)
	case schema.KindError:
		l.add(&DisplayBlock{Type: BlockError, Text: e.Content}, e)
	default:
		return false
	}
	return true
}

func (l *blockLog) add(b *DisplayBlock, e schema.Event) {
	b.RunID = e.RunID
	b.CreatedAt = e.Timestamp
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	l.blocks = append(l.blocks, b)
}

// system は TUI 自身のメッセージを追加する。
func (l *blockLog) system(text string) {
	l.blocks = append(l.blocks, &DisplayBlock{Type: BlockSystem, Text: text, CreatedAt: time.Now()})
}

// question は質問ブロックを追加する。同じ ID は二重に追加しない。
func (l *blockLog) question(q schema.Question) {
	for _, b := range l.blocks {
		if b.Type == BlockQuestion && b.QuestionID == q.ID {
			return
		}
	}
	l.blocks = append(l.blocks, &DisplayBlock{Type: BlockQuestion, QuestionID: q.ID, Text: q.Text, CreatedAt: q.AskedAt})
}

// answered は最も古い未回答の質問ブロックに回答を記録する。
func (l *blockLog) answered(text string) {
	for _, b := range l.blocks {
		if b.Type == BlockQuestion && !b.Answered {
			b.Answered = true
			b.Answer = text
			return
		}
	}
}

// openTool は runID の未完了 BlockTool を末尾から探す。
func (l *blockLog) openTool(runID string) *DisplayBlock {
	for i := len(l.blocks) - 1; i >= 0; i-- {
		b := l.blocks[i]
		if b.Type == BlockTool && b.RunID == runID {
			if b.Completed {
				return nil
			}
			return b
		}
	}
	return nil
}

// hasActiveSpinner は結果待ちのツールがあるかを返す。
func (l *blockLog) hasActiveSpinner() bool {
	for i := len(l.blocks) - 1; i >= 0; i-- {
		if b := l.blocks[i]; b.Type == BlockTool {
			return !b.Completed
		}
	}
	return false
}

func unwrapTag(s, prefix string) string {
	if strings.HasPrefix(s, prefix) && strings.HasSuffix(s, "]") {
		return s[len(prefix) : len(s)-1]
	}
	return s
}

func splitOutput(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
