package artifact

import "fmt"

// invalidNameCharacters are rejected in artifact names.
var invalidNameCharacters = map[rune]string{
	'"':  `Double quote "`,
	':':  `Colon :`,
	'<':  `Less than <`,
	'>':  `Greater than >`,
	'|':  `Vertical bar |`,
	'*':  `Asterisk *`,
	'?':  `Question mark ?`,
	'\r': `Carriage return \r`,
	'\n': `Line feed \n`,
	'\\': `Backslash \`,
	'/':  `Forward slash /`,
}

// ValidateName rejects empty names, reserved path segments and names that
// contain reserved characters or path separators.
func ValidateName(name string) error {
	return validateName("validate", name)
}

func validateName(op, name string) error {
	if name == "" {
		return invalidArgument(op, fmt.Errorf("artifact name is required"))
	}
	if name == "." || name == ".." {
		return invalidArgument(op, fmt.Errorf("artifact name %q is a reserved path segment", name))
	}
	for _, r := range name {
		if desc, bad := invalidNameCharacters[r]; bad {
			return invalidArgument(op, fmt.Errorf("artifact name %q contains %s", name, desc))
		}
	}
	return nil
}
