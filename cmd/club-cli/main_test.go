package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/vzs-club-api/internal/models"
)

func TestParseSex(t *testing.T) {
	sex, err := parseSex(" f ")
	require.NoError(t, err)
	assert.Equal(t, models.SexFemale, sex)

	sex, err = parseSex("M")
	require.NoError(t, err)
	assert.Equal(t, models.SexMale, sex)

	_, err = parseSex("X")
	assert.Error(t, err)
}

func TestCreateSuperuserRejectsUnknownSex(t *testing.T) {
	err := run(context.Background(), nil, zap.NewNop(), "createsuperuser", []string{"-email", "admin@vzs.cz", "-sex", "Z"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sex must be M or F")
}
