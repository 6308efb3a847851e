package core

// naming.go derives the official file names the regulator's intake system
// expects. Every function here is part of the external contract and must be
// bit-exact.

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// NoEstablishmentCode is the reserved code for "no official code assigned".
	NoEstablishmentCode = "9998"

	// NoEstablishmentInst replaces the institution segment of file names
	// when the establishment has no official code.
	NoEstablishmentInst = "99SMP"

	// EstablishmentCodeLength is the fixed length of an official code.
	EstablishmentCodeLength = 11

	entidadInstLength = 5
)

var establishmentCodePattern = regexp.MustCompile(`^[A-Z]{5}\d{6}$`)

// EntidadInst returns the 5-character institution segment for a file name.
func EntidadInst(establishmentCode string) string {
	code := strings.ToUpper(strings.TrimSpace(establishmentCode))
	if code == "" || code == NoEstablishmentCode {
		return NoEstablishmentInst
	}
	if len(code) > entidadInstLength {
		code = code[:entidadInstLength]
	}
	return code
}

// OfficialBaseName returns {guide}-{entidadInst}-{YY}{MM}.
func OfficialBaseName(guide, establishmentCode string, year, month int) string {
	return fmt.Sprintf("%s-%s-%02d%02d",
		strings.ToUpper(guide), EntidadInst(establishmentCode), year%100, month)
}

// OfficialFileName appends an extension to a base name.
func OfficialFileName(baseName, ext string) string {
	return baseName + "." + ext
}

// NormalizeEstablishmentCode trims and uppercases an on-file code. Codes that
// are empty or not a well-formed official code resolve to NoEstablishmentCode.
func NormalizeEstablishmentCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != EstablishmentCodeLength || !establishmentCodePattern.MatchString(code) {
		return NoEstablishmentCode
	}
	return code
}
