package pubcover

import _ "embed"

// SampleConfig is the annotated configuration written by `pubcover config init`.
//
//go:embed sample_config.toml
var SampleConfig string
