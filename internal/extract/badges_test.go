package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gradsync/internal/model"
)

func TestApplyBadges_GRESubtypesBeforeTotal(t *testing.T) {
	var rec model.ApplicantRecord
	ApplyBadges(&rec, []string{"GRE AW: 4.5"})
	require.NotNil(t, rec.GREAW)
	assert.InDelta(t, 4.5, *rec.GREAW, 0.001)
	assert.Nil(t, rec.GRE)

	rec = model.ApplicantRecord{}
	ApplyBadges(&rec, []string{"GRE: 320"})
	require.NotNil(t, rec.GRE)
	assert.Equal(t, 320, *rec.GRE)
	assert.Nil(t, rec.GREAW)
	assert.Nil(t, rec.GREVerbal)

	rec = model.ApplicantRecord{}
	ApplyBadges(&rec, []string{"GRE V 158"})
	require.NotNil(t, rec.GREVerbal)
	assert.Equal(t, 158, *rec.GREVerbal)
	assert.Nil(t, rec.GRE)
}

func TestApplyBadges_OrderIndependent(t *testing.T) {
	badges := []string{"Spring 2025", "GPA 3.71", "International", "GRE 310"}
	var a, b model.ApplicantRecord
	ApplyBadges(&a, badges)
	ApplyBadges(&b, []string{badges[3], badges[2], badges[1], badges[0]})
	assert.Equal(t, a, b)
	assert.Equal(t, "Spring 2025", a.Term)
	assert.Equal(t, model.StudentTypeInternational, a.StudentType)
	require.NotNil(t, a.GPA)
	assert.InDelta(t, 3.71, *a.GPA, 0.001)
}

func TestApplyBadges_Ignored(t *testing.T) {
	var rec model.ApplicantRecord
	ApplyBadges(&rec, []string{"Details...", "international", "GPA n/a", "GRE V 160.5", "Summer 2025"})
	assert.Equal(t, model.ApplicantRecord{}, rec)
}

func TestApplyBadges_OtherURM(t *testing.T) {
	var rec model.ApplicantRecord
	ApplyBadges(&rec, []string{"Other URM"})
	assert.Equal(t, model.StudentTypeOtherURM, rec.StudentType)
}
