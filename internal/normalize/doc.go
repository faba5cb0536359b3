// Package normalize holds pure value transformations applied to scraped
// fields: numeral transliteration, marker stripping, Latin filtering, and
// reconciliation of Gregorian and Jalali dates.
package normalize
