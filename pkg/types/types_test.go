package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	assert.Equal(t, "gai media", Canonicalize("  Gai   Media "))
	assert.Equal(t, "so-1001", Canonicalize("SO-1001"))
	assert.Equal(t, "", Canonicalize("   "))
}

func TestHashNameFoldsSurfaceForms(t *testing.T) {
	assert.Equal(t, HashName("Gai Media"), HashName("gai   MEDIA"))
	assert.NotEqual(t, HashName("Gai Media"), HashName("Globex Industries"))
	assert.Len(t, HashName("anything"), 64)
}

func TestEntityValidate(t *testing.T) {
	entity := &Entity{
		Name:       "Gai Media",
		Type:       EntityTypeCustomer,
		Source:     EntitySourceDB,
		Confidence: 0.9,
	}
	require.NoError(t, entity.Validate())

	bad := *entity
	bad.Type = "planet"
	assert.Error(t, bad.Validate())

	bad = *entity
	bad.Confidence = 1.2
	assert.Error(t, bad.Validate())

	bad = *entity
	bad.Source = EntitySourceMessage
	bad.ExternalRef = &ExternalRef{Table: TableCustomers, ID: "cust-1"}
	assert.Error(t, bad.Validate(), "external refs require a db source")
}

func TestEntityAliasValidate(t *testing.T) {
	alias := &EntityAlias{
		CanonicalEntityID: "ent-1",
		AliasText:         "Gai Meda",
		Source:            AliasSourceFuzzyMatch,
		Confidence:        0.9,
	}
	require.NoError(t, alias.Validate())

	alias.AliasText = ""
	assert.Error(t, alias.Validate())
}

func TestRelationshipValidateExactlyOneObject(t *testing.T) {
	rel := &Relationship{
		SubjectEntityID: "ent-1",
		Predicate:       PredicatePrefers,
		ObjectValue:     "morning deliveries",
		Confidence:      0.8,
		Source:          RelationshipSourceConversation,
	}
	require.NoError(t, rel.Validate())
	assert.Equal(t, "morning deliveries", rel.Object())

	rel.ObjectEntityID = "ent-2"
	assert.Error(t, rel.Validate(), "both object forms set")
	assert.Equal(t, "ent-2", rel.Object())

	rel.ObjectValue = ""
	require.NoError(t, rel.Validate())
}

func TestMemoryExpiry(t *testing.T) {
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &Memory{Kind: MemoryKindEpisodic, Text: "note", Importance: 0.5,
		TTLDays: 30, CreatedAt: created}
	require.NoError(t, m.Validate())

	m.ComputeExpiry()
	require.NotNil(t, m.ExpiresAt)
	assert.Equal(t, created.Add(30*24*time.Hour), *m.ExpiresAt)
	assert.False(t, m.Expired(created.Add(29*24*time.Hour)))
	assert.True(t, m.Expired(created.Add(31*24*time.Hour)))

	m.TTLDays = 0
	m.ComputeExpiry()
	assert.Nil(t, m.ExpiresAt)
	assert.False(t, m.Expired(created.Add(1000*24*time.Hour)))
}

func TestMemoryClampImportance(t *testing.T) {
	m := &Memory{Importance: 1.7}
	m.ClampImportance()
	assert.Equal(t, 1.0, m.Importance)

	m.Importance = -0.2
	m.ClampImportance()
	assert.Equal(t, 0.0, m.Importance)
}
