package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPersonAgeBeforeAndAfterBirthday(t *testing.T) {
	p := Person{DateOfBirth: day(2010, time.June, 15)}

	assert.Equal(t, 13, p.Age(day(2024, time.June, 14)))
	assert.Equal(t, 14, p.Age(day(2024, time.June, 15)))
	assert.Equal(t, 14, p.Age(day(2024, time.December, 1)))
}

func TestAgeAllowedWithEqualBounds(t *testing.T) {
	ten := 10
	assert.True(t, AgeAllowed(10, &ten, &ten))
	assert.False(t, AgeAllowed(9, &ten, &ten))
	assert.False(t, AgeAllowed(11, &ten, &ten))
	assert.True(t, AgeAllowed(50, nil, nil))
}

func TestCanonicalPhone(t *testing.T) {
	cases := map[string]string{
		"+420 777 123 456": "777123456",
		"00420777123456":   "777123456",
		"777-123-456":      "777123456",
	}
	for in, want := range cases {
		got, ok := CanonicalPhone(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := CanonicalPhone("12345")
	assert.False(t, ok)
}

func TestBirthNumberAndSwimTime(t *testing.T) {
	assert.True(t, ValidBirthNumber("100615/1234"))
	assert.True(t, ValidBirthNumber("1006151234"))
	assert.False(t, ValidBirthNumber("10-06-15"))
	assert.True(t, ValidSwimmingTime("1:45.30"))
	assert.False(t, ValidSwimmingTime("fast"))
}

func TestEnrollmentTransitions(t *testing.T) {
	assert.True(t, EnrollmentWaiting.CanTransitionTo(EnrollmentSubstitute))
	assert.True(t, EnrollmentSubstitute.CanTransitionTo(EnrollmentWaiting))
	assert.True(t, EnrollmentSubstitute.CanTransitionTo(EnrollmentApproved))
	assert.True(t, EnrollmentApproved.CanTransitionTo(EnrollmentRejected))
	assert.True(t, EnrollmentRejected.CanTransitionTo(EnrollmentSubstitute))

	assert.False(t, EnrollmentWaiting.CanTransitionTo(EnrollmentApproved))
	assert.False(t, EnrollmentApproved.CanTransitionTo(EnrollmentSubstitute))
	assert.False(t, EnrollmentRejected.CanTransitionTo(EnrollmentApproved))
}

func TestWeekdaySetOperations(t *testing.T) {
	held := NewWeekdaySet(time.Wednesday, time.Monday, time.Monday)
	assert.Equal(t, WeekdaySet{time.Monday, time.Wednesday}, held)
	assert.True(t, NewWeekdaySet(time.Monday).SubsetOf(held))
	assert.False(t, NewWeekdaySet(time.Friday).SubsetOf(held))
	assert.Equal(t, WeekdaySet{time.Wednesday}, held.Minus(NewWeekdaySet(time.Monday)))

	var scanned WeekdaySet
	require.NoError(t, scanned.Scan([]byte("{3,1}")))
	assert.Equal(t, held, scanned)
}

func TestPersonTypeListEmptyMeansAny(t *testing.T) {
	assert.True(t, PersonTypeList{}.Contains(PersonTypeChild))
	assert.False(t, PersonTypeList{PersonTypeAdult}.Contains(PersonTypeChild))
}

func TestClockTimeScan(t *testing.T) {
	var c ClockTime
	require.NoError(t, c.Scan([]byte("17:30:00")))
	assert.Equal(t, "17:30", c.String())
	assert.Equal(t, time.Date(2024, 1, 1, 17, 30, 0, 0, time.UTC), c.On(day(2024, 1, 1), time.UTC))
}

func TestFeatureAssignmentValidOn(t *testing.T) {
	expire := day(2024, time.May, 1)
	a := FeatureAssignment{DateAssigned: day(2024, time.January, 1), DateExpire: &expire}
	assert.True(t, a.ValidOn(day(2024, time.May, 1)))
	assert.False(t, a.ValidOn(day(2024, time.May, 2)))

	returned := day(2024, time.February, 1)
	a.DateReturned = &returned
	assert.False(t, a.ValidOn(day(2024, time.March, 1)))
}

func TestOccurrenceDuration(t *testing.T) {
	hours := 2
	assert.Equal(t, 120, Occurrence{Hours: &hours}.DurationMinutes())

	start := time.Date(2024, 1, 1, 17, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)
	assert.Equal(t, 90, Occurrence{DatetimeStart: &start, DatetimeEnd: &end}.DurationMinutes())
}

func TestPaymentDescriptor(t *testing.T) {
	tx := Transaction{ID: 42, Amount: -200, Reason: "Ploutve*zapůjčení"}
	d := NewPaymentDescriptor(tx, "19-2000145399", "0800")

	assert.Equal(t, 200, d.Amount)
	assert.Equal(t, "42", d.VariableSymbol)
	assert.Equal(t, "CZ6508000000192000145399", d.IBAN)
	assert.Equal(t, "SPD*1.0*ACC:CZ6508000000192000145399*AM:200.00*CC:CZK*X-VS:42*MSG:Ploutve zapůjčení", d.SPD)

	_, err := CzechIBAN("abc", "2010")
	assert.Error(t, err)
}
