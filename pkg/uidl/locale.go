package uidl

import (
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/cuemby/canopy/pkg/value"
)

// localeData is what the client needs to format dates and times for one
// locale
type localeData struct {
	shortMonths []string
	months      []string
	shortDays   []string
	days        []string
	firstDay    int
	dateFormat  string
	twelveHour  bool
	hourMinute  string
	ampm        [2]string
}

var englishMonths = []string{"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December"}

var englishDays = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Order matters: the first tag is the fallback of the matcher
var localeTags = []language.Tag{
	language.AmericanEnglish,
	language.BritishEnglish,
	language.German,
	language.Finnish,
	language.French,
	language.Swedish,
}

var localeTable = []localeData{
	{
		shortMonths: abbreviate(englishMonths, 3),
		months:      englishMonths,
		shortDays:   abbreviate(englishDays, 3),
		days:        englishDays,
		firstDay:    0,
		dateFormat:  "M/d/yy",
		twelveHour:  true,
		hourMinute:  ":",
		ampm:        [2]string{"AM", "PM"},
	},
	{
		shortMonths: abbreviate(englishMonths, 3),
		months:      englishMonths,
		shortDays:   abbreviate(englishDays, 3),
		days:        englishDays,
		firstDay:    1,
		dateFormat:  "dd/MM/yy",
		hourMinute:  ":",
	},
	{
		shortMonths: []string{"Jan", "Feb", "Mär", "Apr", "Mai", "Jun", "Jul", "Aug", "Sep", "Okt", "Nov", "Dez"},
		months: []string{"Januar", "Februar", "März", "April", "Mai", "Juni",
			"Juli", "August", "September", "Oktober", "November", "Dezember"},
		shortDays:  []string{"So", "Mo", "Di", "Mi", "Do", "Fr", "Sa"},
		days:       []string{"Sonntag", "Montag", "Dienstag", "Mittwoch", "Donnerstag", "Freitag", "Samstag"},
		firstDay:   1,
		dateFormat: "dd.MM.yy",
		hourMinute: ":",
	},
	{
		shortMonths: []string{"tammi", "helmi", "maalis", "huhti", "touko", "kesä",
			"heinä", "elo", "syys", "loka", "marras", "joulu"},
		months: []string{"tammikuu", "helmikuu", "maaliskuu", "huhtikuu", "toukokuu", "kesäkuu",
			"heinäkuu", "elokuu", "syyskuu", "lokakuu", "marraskuu", "joulukuu"},
		shortDays:  []string{"su", "ma", "ti", "ke", "to", "pe", "la"},
		days:       []string{"sunnuntai", "maanantai", "tiistai", "keskiviikko", "torstai", "perjantai", "lauantai"},
		firstDay:   1,
		dateFormat: "d.M.yyyy",
		hourMinute: ".",
	},
	{
		shortMonths: []string{"janv.", "févr.", "mars", "avr.", "mai", "juin",
			"juil.", "août", "sept.", "oct.", "nov.", "déc."},
		months: []string{"janvier", "février", "mars", "avril", "mai", "juin",
			"juillet", "août", "septembre", "octobre", "novembre", "décembre"},
		shortDays:  []string{"dim.", "lun.", "mar.", "mer.", "jeu.", "ven.", "sam."},
		days:       []string{"dimanche", "lundi", "mardi", "mercredi", "jeudi", "vendredi", "samedi"},
		firstDay:   1,
		dateFormat: "dd/MM/yy",
		hourMinute: ":",
	},
	{
		shortMonths: []string{"jan", "feb", "mar", "apr", "maj", "jun", "jul", "aug", "sep", "okt", "nov", "dec"},
		months: []string{"januari", "februari", "mars", "april", "maj", "juni",
			"juli", "augusti", "september", "oktober", "november", "december"},
		shortDays:  []string{"sön", "mån", "tis", "ons", "tors", "fre", "lör"},
		days:       []string{"söndag", "måndag", "tisdag", "onsdag", "torsdag", "fredag", "lördag"},
		firstDay:   1,
		dateFormat: "yyyy-MM-dd",
		hourMinute: ":",
	},
}

var localeMatcher = language.NewMatcher(localeTags)

func abbreviate(names []string, n int) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = name[:n]
	}
	return out
}

// lookupLocale finds the closest known definitions for a locale name such
// as "fi_FI" or "en-GB". Unknown names get the first table entry.
func lookupLocale(name string) localeData {
	tag, err := language.Parse(strings.ReplaceAll(name, "_", "-"))
	if err != nil {
		return localeTable[0]
	}
	_, index, confidence := localeMatcher.Match(tag)
	if confidence == language.No {
		return localeTable[0]
	}
	return localeTable[index]
}

func writeLocale(out *bytes.Buffer, name string) {
	d := lookupLocale(name)
	out.WriteString(`{"name":`)
	value.WriteQuoted(out, name)
	writeNames(out, "smn", d.shortMonths)
	writeNames(out, "mn", d.months)
	writeNames(out, "sdn", d.shortDays)
	writeNames(out, "dn", d.days)
	out.WriteString(`,"fdow":`)
	out.WriteString(strconv.Itoa(d.firstDay))
	out.WriteString(`,"df":`)
	value.WriteQuoted(out, d.dateFormat)
	out.WriteString(`,"thc":`)
	out.WriteString(strconv.FormatBool(d.twelveHour))
	out.WriteString(`,"hmd":`)
	value.WriteQuoted(out, d.hourMinute)
	if d.twelveHour {
		writeNames(out, "ampm", d.ampm[:])
	}
	out.WriteByte('}')
}

func writeNames(out *bytes.Buffer, key string, names []string) {
	out.WriteString(`,"`)
	out.WriteString(key)
	out.WriteString(`":[`)
	for i, n := range names {
		if i > 0 {
			out.WriteByte(',')
		}
		value.WriteQuoted(out, n)
	}
	out.WriteByte(']')
}

// Locales tracks which locale definitions one root still has to send
type Locales struct {
	pending []string
	sent    map[string]bool
}

// NewLocales creates an empty tracker
func NewLocales() *Locales {
	return &Locales{sent: make(map[string]bool)}
}

// Require queues name unless it was already sent or queued
func (l *Locales) Require(name string) {
	if name == "" || l.sent[name] {
		return
	}
	for _, p := range l.pending {
		if p == name {
			return
		}
	}
	l.pending = append(l.pending, name)
}

// TakePending returns the queued names and marks them sent
func (l *Locales) TakePending() []string {
	out := l.pending
	l.pending = nil
	for _, name := range out {
		l.sent[name] = true
	}
	return out
}

// Reset forgets everything that was sent, as after a full repaint
func (l *Locales) Reset() {
	l.pending = nil
	l.sent = make(map[string]bool)
}
