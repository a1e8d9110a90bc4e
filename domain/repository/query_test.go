package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuild_CollectsConditionsInOrder(t *testing.T) {
	q := Build(
		WithCondition("bucket", "files"),
		WithNull("content"),
		WithConditionNotIn("content", []string{"WIP", "ERROR"}),
		WithOrderAsc("id"),
		WithLimit(10),
	)

	conds := q.Conditions()
	assert.Len(t, conds, 3)
	assert.Equal(t, "bucket = files", conds[0].String())
	assert.Equal(t, OpIsNull, conds[1].Operator())
	assert.Nil(t, conds[1].Value())
	assert.Equal(t, "content NOT IN [WIP ERROR]", conds[2].String())
	assert.Equal(t, 10, q.LimitValue())
	assert.True(t, q.Orders()[0].Ascending())
}

func TestQuery_ConditionsReturnsCopy(t *testing.T) {
	q := Build(WithID(1))
	conds := q.Conditions()
	conds[0] = Condition{}

	assert.Equal(t, "id", q.Conditions()[0].Field())
}

func TestQuery_Param(t *testing.T) {
	q := Build(WithParam("min_length", 100))

	v, ok := q.Param("min_length")
	assert.True(t, ok)
	assert.Equal(t, 100, v)

	_, ok = Build().Param("missing")
	assert.False(t, ok)
}
