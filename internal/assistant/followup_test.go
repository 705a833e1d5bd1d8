package assistant

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksFollowUp(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Yarın?", true},
		{"ya izmir", true},
		{"İstanbul'da hava nasıl olacak", false},
		{"Peki Ankara için durum nedir", true},
		{"bunun anlamı nedir şimdi", false},
		{"Türkiye'nin başkenti neresidir acaba", false},
		{"ben sonra tekrar soracağım", true},
		{"bu akşam maç var mı", true},
		{"hangisi daha ucuz olur", true},
		{"", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksFollowUp(tt.text), tt.text)
	}
}

func TestAugmentQuery(t *testing.T) {
	previous := []string{"Ankara'da hava nasıl", "İzmir'de durum ne"}

	assert.Equal(t, "Ankara'da hava nasıl İzmir'de durum ne peki yarın?",
		AugmentQuery("peki yarın?", previous))
	assert.Equal(t, "Türkiye'nin başkenti neresidir acaba",
		AugmentQuery("Türkiye'nin başkenti neresidir acaba", previous))
	assert.Equal(t, "peki yarın?", AugmentQuery("peki yarın?", nil))
}
