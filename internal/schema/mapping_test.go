package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Clukay-Fun/OmniAgent-sub000/internal/backend"
)

func testSchema() *TableSchema {
	return &TableSchema{
		TableID: "tbl1",
		Fields: []backend.FieldMeta{
			{FieldID: "f1", Name: "案号", Type: backend.FieldTypeText},
			{FieldID: "f2", Name: "案件状态", Type: backend.FieldTypeSingleSelect},
			{FieldID: "f3", Name: "开庭日", Type: backend.FieldTypeDate},
			{FieldID: "f4", Name: "主办律师", Type: backend.FieldTypePerson},
			{FieldID: "f5", Name: "举证截止日", Type: backend.FieldTypeDate},
			{FieldID: "f6", Name: "管辖权异议截止日", Type: backend.FieldTypeDate},
		},
	}
}

func TestResolveFieldExact(t *testing.T) {
	s := testSchema()
	assert.Equal(t, "案号", ResolveField(s, "案号", nil))
}

func TestResolveFieldAlias(t *testing.T) {
	s := testSchema()
	aliases := map[string][]string{
		"状态": {"案件状态", "标书领取状态"},
		"律师": {"主办律师"},
	}
	assert.Equal(t, "案件状态", ResolveField(s, "状态", aliases))
	assert.Equal(t, "主办律师", ResolveField(s, "律师", aliases))
}

func TestResolveFieldNormalized(t *testing.T) {
	s := testSchema()
	assert.Equal(t, "案件状态", ResolveField(s, " 案件状态 ", nil))
}

func TestResolveFieldSuffix(t *testing.T) {
	s := testSchema()
	assert.Equal(t, "开庭日", ResolveField(s, "开庭日（首次）", nil))
}

func TestResolveFieldAmbiguousReturnsEmpty(t *testing.T) {
	s := testSchema()
	// 截止日 matches both 举证截止日 and 管辖权异议截止日
	assert.Equal(t, "", ResolveField(s, "截止日", nil))
}

func TestResolveFieldMiss(t *testing.T) {
	s := testSchema()
	assert.Equal(t, "", ResolveField(s, "不存在的字段", nil))
	assert.Equal(t, "", ResolveField(s, "", nil))
}

func TestCoerceDate(t *testing.T) {
	meta := backend.FieldMeta{Name: "开庭日", Type: backend.FieldTypeDate}

	v, err := CoerceValue(meta, "2025-06-15")
	assert.NoError(t, err)
	assert.Equal(t, int64(1749916800000), v)

	v, err = CoerceValue(meta, int64(1749916800000))
	assert.NoError(t, err)
	assert.Equal(t, int64(1749916800000), v)

	_, err = CoerceValue(meta, "下周不知道哪天")
	assert.Error(t, err)
}

func TestCoerceNumberAndCheckbox(t *testing.T) {
	num := backend.FieldMeta{Name: "标的额", Type: backend.FieldTypeNumber}
	v, err := CoerceValue(num, "1,200.50")
	assert.NoError(t, err)
	assert.Equal(t, 1200.50, v)

	box := backend.FieldMeta{Name: "已缴费", Type: backend.FieldTypeCheckbox}
	v, err = CoerceValue(box, "是")
	assert.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestCoerceMultiSelectSplitsDelimiters(t *testing.T) {
	meta := backend.FieldMeta{Name: "标签", Type: backend.FieldTypeMultiSelect}
	v, err := CoerceValue(meta, "紧急、重大，涉外")
	assert.NoError(t, err)
	assert.Equal(t, []string{"紧急", "重大", "涉外"}, v)
}
