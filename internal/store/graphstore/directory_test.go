package graphstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sensorgrid/internal/domain"
)

func TestGrantPattern(t *testing.T) {
	got := grantPattern(domain.GrantEdges)

	// One pattern covers all three grant paths: the zero-length hop matches
	// direct CAN_EXECUTE edges, the one-length hop roles and groups.
	assert.Equal(t, "-[:HAS_ROLE|MEMBER_OF*0..1]->()-[:CAN_EXECUTE]->", got)
}

func TestGrantPatternSingleEdge(t *testing.T) {
	got := grantPattern([]string{domain.EdgeHasRole})

	assert.Equal(t, "-[:HAS_ROLE*0..1]->()-[:CAN_EXECUTE]->", got)
}
