package classifier

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTokenizer(t *testing.T) *WordPieceTokenizer {
	t.Helper()
	vocab := []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "verify", "your", "account", "acc", "##ount", "!", "pass", "##word", "."}
	path := filepath.Join(t.TempDir(), "vocab.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(vocab, "\n")+"\n"), 0o644))
	tok, err := LoadWordPieceTokenizer(path)
	require.NoError(t, err)
	return tok
}

func TestEncode_PadsAndMasks(t *testing.T) {
	tok := testTokenizer(t)

	ids, attn := tok.Encode("Verify your ACCOUNT!", 8)

	assert.Equal(t, []int64{2, 4, 5, 6, 9, 3, 0, 0}, ids)
	assert.Equal(t, []int64{1, 1, 1, 1, 1, 1, 0, 0}, attn)
}

func TestEncode_WordPiecesAndUnknown(t *testing.T) {
	tok := testTokenizer(t)

	ids, _ := tok.Encode("password zebra.", 6)

	assert.Equal(t, []int64{2, 10, 11, 1, 12, 3}, ids)
}

func TestEncode_TruncatesKeepingHead(t *testing.T) {
	tok := testTokenizer(t)

	ids, attn := tok.Encode("verify verify verify verify verify", 4)

	assert.Equal(t, []int64{2, 4, 4, 3}, ids)
	assert.Equal(t, []int64{1, 1, 1, 1}, attn)
}

func TestNewWordPieceTokenizer_RequiresSpecials(t *testing.T) {
	_, err := NewWordPieceTokenizer(map[string]int64{"[CLS]": 0})
	assert.Error(t, err)
}
