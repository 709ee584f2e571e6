package domain

import jsoniter "github.com/json-iterator/go"

// json mirrors encoding/json behaviour (sorted map keys, RawMessage, Marshaler support).
var json = jsoniter.ConfigCompatibleWithStandardLibrary
