package processor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/ackaudit/internal/models"
	"github.com/xhad/ackaudit/pkg/processor"
)

func TestProcessor_Split(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})

	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "abbreviations are guarded",
			text: "Dr. Smith et al. reported results. The sample was imaged using SEM.",
			want: []string{"Dr. Smith et al. reported results.", "The sample was imaged using SEM."},
		},
		{
			name: "figure references",
			text: "As shown in Fig. 2 and Fig. (3), grains grow. (See also Eq. 4.) Done!",
			want: []string{"As shown in Fig. 2 and Fig. (3), grains grow.", "(See also Eq. 4.) Done!"},
		},
		{
			name: "question and exclamation",
			text: "Why? Because! it works.",
			want: []string{"Why?", "Because! it works."},
		},
		{
			name: "lowercase continuation is not a boundary",
			text: "Values were approx. constant, i.e. Stable. and then 5.2 nm.",
			want: []string{"Values were approx. constant, i.e. Stable. and then 5.2 nm."},
		},
		{
			name: "line breaks and nbsp are folded",
			text: "We thank the\u00a0\nCMCA\u00a0staff.\n\nFunding was provided.",
			want: []string{"We thank the CMCA staff.", "Funding was provided."},
		},
		{
			name: "abbreviation must start a word",
			text: "Samples came from Africa. Results follow.",
			want: []string{"Samples came from Africa.", "Results follow."},
		},
		{
			name: "short fragments dropped",
			text: "Ok. X",
			want: []string{"Ok."},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Split(tt.text))
		})
	}
}

func TestProcessor_Process(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})
	pages := []models.Page{
		{Number: 1, Text: "First sentence here. Second one follows."},
		{Number: 2, Text: ""},
		{Number: 3, Text: "Only one on page three."},
	}

	sentences := p.Process(pages)

	require.Len(t, sentences, 3)
	assert.Equal(t, "p1_s1", sentences[0].ID)
	assert.Equal(t, "p1_s2", sentences[1].ID)
	assert.Equal(t, 2, sentences[1].Index)
	assert.Equal(t, "p3_s1", sentences[2].ID)
	assert.Equal(t, 3, sentences[2].Page)

	seen := map[string]bool{}
	lastIndex := map[int]int{}
	for _, s := range sentences {
		assert.False(t, seen[s.ID], "duplicate id %s", s.ID)
		seen[s.ID] = true
		assert.Greater(t, s.Index, lastIndex[s.Page])
		lastIndex[s.Page] = s.Index
	}

	assert.Equal(t, sentences, p.Process(pages), "segmentation must be deterministic")
}

func TestProcessor_CustomAbbreviations(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{CustomAbbreviations: []string{"Dept."}})

	got := p.Split("Contact the Dept. Of Physics. Thanks.")
	assert.Equal(t, []string{"Contact the Dept. Of Physics.", "Thanks."}, got)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "field of view", processor.CleanText("  ﬁeld\tof\n view "))
}
