// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cube

import (
	"strconv"
	"strings"
)

// Display conventions for a few well-known columns. The harvesting phase
// relocates prior results purely by recomputing paths, so these rules
// must stay bit-for-bit stable between booking and reload.
var shortCodes = map[int]string{
	11: "_mI",
	12: "_mO",
	21: "_pI",
	22: "_pO",
}

// MakePath derives the storage folder path for a key, deterministically.
//
// The key's columns are walked in canonical order; for each, the pretty
// name is appended (columns with an empty pretty name are dropped),
// followed by a value suffix:
//
//   - "_<v>" in the general case, hidden entirely when v == 0
//   - signed "_+<v>" for the axial "Disk" column when v > 0
//   - fixed short codes (_mI, _mO, _pI, _pO) for the orientation columns
//     "Shell" and "HalfCylinder"
//   - "_UNDEFINED" for the sentinel
//
// The result always ends with "/".
func MakePath(topFolder string, p Provider, key *Values) string {
	var b strings.Builder
	b.WriteString(topFolder)
	b.WriteByte('/')
	for _, kv := range key.Pairs() {
		name := p.Pretty(kv.Col)
		if name == "" {
			continue
		}
		value := "_" + strconv.Itoa(kv.Val)
		if kv.Val == 0 {
			value = "" // hide Barrel_0 etc.
		}
		if name == "Disk" && kv.Val > 0 {
			value = "_+" + strconv.Itoa(kv.Val)
		}
		if name == "Shell" || name == "HalfCylinder" {
			value = shortCodes[kv.Val]
		}
		if kv.Val == Undefined {
			value = "_UNDEFINED"
		}
		b.WriteString(name)
		b.WriteString(value)
		b.WriteByte('/')
	}
	return b.String()
}
