package membership

import (
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func strPtr(s string) *string { return &s }

func exampleRecord() MemberRecord {
	return MemberRecord{
		Salutation: "Herr",
		LastName:   "Muster",
		FirstName:  "Max",
		Address:    "Str. 1",
		PostalCode: "1234",
		City:       "Bern",
		Email:      "m@x.com",
		Phone:      strPtr(""),
		Status:     "PM",
		Amount:     "50",
		JoinYear:   "2024",
		Reference:  strPtr(""),
	}
}

func TestFormatRow_Example(t *testing.T) {
	row, err := FormatRow(exampleRecord(), false)
	require.NoError(t, err)
	assert.Equal(t, "Herr,Muster,Max,Str. 1,1234,Bern,m@x.com,,PM,50,2024,\n", row)
}

func TestFormatRow_AbsentOptionalFields(t *testing.T) {
	r := exampleRecord()
	r.Phone = nil
	r.Reference = nil

	row, err := FormatRow(r, false)
	require.NoError(t, err)
	assert.Equal(t, "Herr,Muster,Max,Str. 1,1234,Bern,m@x.com,,PM,50,2024,\n", row)
}

func TestFormatRow_CommaShiftsColumnsWithoutEscaping(t *testing.T) {
	r := exampleRecord()
	r.Address = "Hauptstr. 1, Postfach"

	row, err := FormatRow(r, false)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSuffix(row, "\n"), ","), 13)
}

func TestFormatRow_Escaped(t *testing.T) {
	r := exampleRecord()
	r.Address = "Hauptstr. 1, Postfach"

	row, err := FormatRow(r, true)
	require.NoError(t, err)
	assert.Equal(t, "Herr,Muster,Max,\"Hauptstr. 1, Postfach\",1234,Bern,m@x.com,,PM,50,2024,\n", row)
}

func TestFormatRow_EscapingLeavesPlainFieldsAlone(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := recordGen().Draw(t, "record")
		plain, err := FormatRow(r, false)
		require.NoError(t, err)
		escaped, err := FormatRow(r, true)
		require.NoError(t, err)
		assert.Equal(t, plain, escaped)
	})
}

func TestFormatRow_EscapingKeepsLeadingSpaces(t *testing.T) {
	r := exampleRecord()
	r.Address = " Str. 1"
	r.City = "Bern "

	row, err := FormatRow(r, true)
	require.NoError(t, err)
	assert.Equal(t, "Herr,Muster,Max, Str. 1,1234,Bern ,m@x.com,,PM,50,2024,\n", row)
}

func TestFormatRow_EscapesQuotesAndLineBreaks(t *testing.T) {
	r := exampleRecord()
	r.LastName = `Muster "Max"`
	r.Address = "Str. 1\nPostfach"

	row, err := FormatRow(r, true)
	require.NoError(t, err)
	assert.Equal(t, "Herr,\"Muster \"\"Max\"\"\",Max,\"Str. 1\nPostfach\",1234,Bern,m@x.com,,PM,50,2024,\n", row)
}

func TestFormatRow_EscapedRowReadsBackAsTwelveFields(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		field := rapid.StringMatching(`[A-Za-z0-9 ,"\n.@-]{0,12}`)
		r := MemberRecord{
			Salutation: field.Draw(t, "anrede"),
			LastName:   field.Draw(t, "name"),
			FirstName:  field.Draw(t, "vorname"),
			Address:    field.Draw(t, "adresse"),
			PostalCode: field.Draw(t, "plz"),
			City:       field.Draw(t, "ort"),
			Email:      field.Draw(t, "email"),
			Phone:      strPtr(field.Draw(t, "tel")),
			Status:     field.Draw(t, "status"),
			Amount:     field.Draw(t, "betrag"),
			JoinYear:   field.Draw(t, "beitritt"),
			Reference:  strPtr(field.Draw(t, "referenz")),
		}

		row, err := FormatRow(r, true)
		require.NoError(t, err)

		got, err := csv.NewReader(strings.NewReader(row)).Read()
		require.NoError(t, err)
		assert.Equal(t, r.Fields(), got)
	})
}

func TestAppendRow(t *testing.T) {
	assert.Equal(t, "h\nrow\n", string(appendRow([]byte("h\n"), "row\n")))
	assert.Equal(t, "h\nrow\n", string(appendRow([]byte("h"), "row\n")))
	assert.Equal(t, "row\n", string(appendRow(nil, "row\n")))
}

func TestChangeMessage(t *testing.T) {
	assert.Equal(t, "Add new member: Max Muster", exampleRecord().ChangeMessage())
}

// recordGen draws records whose fields need no CSV quoting. Leading and
// trailing spaces are allowed.
func recordGen() *rapid.Generator[MemberRecord] {
	field := rapid.StringMatching(`[A-Za-z0-9äöüÄÖÜ .@-]{1,16}`)
	opt := func(t *rapid.T, label string) *string {
		if !rapid.Bool().Draw(t, label+"_set") {
			return nil
		}
		s := rapid.StringMatching(`[A-Za-z0-9 ]{0,8}`).Draw(t, label)
		return &s
	}
	return rapid.Custom(func(t *rapid.T) MemberRecord {
		return MemberRecord{
			Salutation: field.Draw(t, "anrede"),
			LastName:   field.Draw(t, "name"),
			FirstName:  field.Draw(t, "vorname"),
			Address:    field.Draw(t, "adresse"),
			PostalCode: rapid.StringMatching(`[0-9]{4}`).Draw(t, "plz"),
			City:       field.Draw(t, "ort"),
			Email:      field.Draw(t, "email"),
			Phone:      opt(t, "tel"),
			Status:     rapid.SampledFrom([]string{"PM", "AM", "EM"}).Draw(t, "status"),
			Amount:     rapid.StringMatching(`[0-9]{1,4}`).Draw(t, "betrag"),
			JoinYear:   rapid.StringMatching(`20[0-9]{2}`).Draw(t, "beitritt"),
			Reference:  opt(t, "referenz"),
		}
	})
}
