package pyindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindImportLines(t *testing.T) {
	text := "from . import foo\nfrom . import foo_bar\nfrom . import foo, bar\n\tfrom . import foo;\nfrom .. import foo\nimport foo\n"
	assert.Equal(t, []int{0, 2, 3}, TextAnchors{}.FindImportLines(text, "foo"))
	assert.Equal(t, []int{1}, TextAnchors{}.FindImportLines(text, "foo_bar"))
	assert.Nil(t, TextAnchors{}.FindImportLines(text, "baz"))
}

func TestHasImport(t *testing.T) {
	text := "from . import models\n    from . import wizard   \nfrom . import report  # old\n"
	a := TextAnchors{}
	assert.True(t, a.HasImport(text, "models"))
	assert.True(t, a.HasImport(text, "wizard"))
	assert.False(t, a.HasImport(text, "report"))
	assert.False(t, a.HasImport(text, "model"))
}

func TestImportedNames(t *testing.T) {
	text := "# header\nfrom . import models\nfrom . import wizard, report  # grouped\nfrom .models import sale\nimport os\n"
	assert.Equal(t, []string{"models", "wizard", "report"}, TextAnchors{}.ImportedNames(text))
}
