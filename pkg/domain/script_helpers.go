package domain

import "strings"

// UniqueCharacterNames は全シーンに登場するキャラクター名を初出順で重複なく抽出します。
func UniqueCharacterNames(script Script) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, sc := range script.Scenes {
		for _, raw := range sc.Characters {
			name := strings.TrimSpace(raw)
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

// SameName は前後の空白と大文字小文字を無視して名前を比較します。
func SameName(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}
