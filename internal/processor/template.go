package processor

import "regexp"

var placeholderPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// ResolveTemplate substitutes ${field} placeholders with values from
// fields. Placeholders naming an absent field are left literal rather than
// blanked, so a bad template stays visible in the produced identifiers.
func ResolveTemplate(template string, fields map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := match[2 : len(match)-1]
		if value, ok := fields[name]; ok {
			return value
		}
		return match
	})
}

// resolveField applies the template/column selection rule shared by the
// element identifier and the embeddable text: the template wins when set,
// otherwise the named column is read directly.
func resolveField(template, column string, fields map[string]string) string {
	if template != "" {
		return ResolveTemplate(template, fields)
	}
	if column != "" {
		return fields[column]
	}
	return ""
}
