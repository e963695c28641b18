package controlmap

import _ "embed"

//go:embed controls.json
var controlsJSON []byte
