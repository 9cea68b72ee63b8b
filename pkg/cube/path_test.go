// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cube

import "testing"

func TestMakePath(t *testing.T) {
	p := newBarrelProvider()

	tests := []struct {
		name string
		put  func(v *Values)
		want string
	}{
		{
			name: "plain values",
			put: func(v *Values) {
				v.Put("layer", 2)
				v.Put("ladder", 7)
			},
			want: "top/PXLayer_2/PXLadder_7/",
		},
		{
			name: "zero value hidden",
			put: func(v *Values) {
				v.Put("layer", 0)
			},
			want: "top/PXLayer/",
		},
		{
			name: "disk positive gets explicit sign",
			put: func(v *Values) {
				v.Put("disk", 2)
			},
			want: "top/Disk_+2/",
		},
		{
			name: "disk negative keeps plain minus",
			put: func(v *Values) {
				v.Put("disk", -2)
			},
			want: "top/Disk_-2/",
		},
		{
			name: "shell short codes",
			put: func(v *Values) {
				v.Put("shell", 11)
			},
			want: "top/Shell_mI/",
		},
		{
			name: "shell outer plus",
			put: func(v *Values) {
				v.Put("shell", 22)
			},
			want: "top/Shell_pO/",
		},
		{
			name: "undefined sentinel",
			put: func(v *Values) {
				v.Put("layer", Undefined)
			},
			want: "top/PXLayer_UNDEFINED/",
		},
		{
			name: "dummy column dropped",
			put: func(v *Values) {
				v.Put("det", 1)
				v.Put("layer", 3)
			},
			want: "top/PXLayer_3/",
		},
		{
			name: "empty key",
			put:  func(v *Values) {},
			want: "top/",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v Values
			tt.put(&v)
			if got := MakePath("top", p, &v); got != tt.want {
				t.Errorf("MakePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMakePath_IsStableAcrossCalls(t *testing.T) {
	p := newBarrelProvider()
	var v Values
	v.Put("layer", 1)
	v.Put("ladder", 2)
	a := MakePath("f", p, &v)
	b := MakePath("f", p, &v)
	if a != b {
		t.Errorf("MakePath not deterministic: %q vs %q", a, b)
	}
}
