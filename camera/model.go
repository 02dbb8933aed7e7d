package camera

import "strings"

type modelRule struct {
	match func(info string) bool
	model string
}

func contains(sub string) func(string) bool {
	return func(s string) bool { return strings.Contains(s, sub) }
}

func equals(want string) func(string) bool {
	return func(s string) bool { return s == want }
}

// Rules are tried in order, so more specific names come first.
var modelRules = []modelRule{
	{contains("222GX"), "222GX"},
	{contains("NBDVR222G-"), "222G"},
	{contains("122HD"), "BASIC"},
	{contains("322GW"), "322GW"},
	{contains("422GW"), "422GW"},
	{contains("522GW"), "522GW"},
	{contains("212"), "BASIC"},
	{contains("222"), "BASIC"},
	{equals("NBDVR312GW"), "312GW"},
	{contains("312G"), "312G"},
	{equals("NBDVR412GW"), "412GW"},
	{equals("NBDVR512GW"), "512GW"},
	{contains("612"), "612GW"},
	{contains("622"), "622GW"},
	{equals("NBDVRDHDGW"), "DUOHD"},
	{contains("NBDVR300"), "300W"},
	{contains("NBDVR380GWX"), "380GWX"},
	{equals("NBDVR380GW"), "380GW"},
}

// Model returns the model name for the identification string a camera
// stores in its video files (see mp4.File.ReadInfoString), or "" if the
// camera is not recognized. The result is suitable for Lookup.
func Model(info string) string {
	for _, r := range modelRules {
		if r.match(info) {
			return r.model
		}
	}
	return ""
}
