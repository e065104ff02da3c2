package item

import (
	jsoniter "github.com/json-iterator/go"

	"hive-staking/internal/model"
	"hive-staking/internal/pkg/jsonx"
)

// Trait names and values that decide classification.
const (
	traitBody   = "Body"
	traitWings  = "Wings"
	valueQueen  = "Queen"
	valueWorker = "Diamond"
)

// Classify maps raw item metadata to an item type.
//
// Attributes are read from reference_blob.attributes, falling back to a
// top-level attributes array. Body=Queen wins over Wings=Diamond; anything
// else, including missing or malformed metadata, is a Drone.
func Classify(metadata []byte) model.ItemType {
	attrs := attributes(metadata)
	if attrs == nil {
		return model.ItemDrone
	}

	var isQueen, isWorker bool
	for i := 0; i < attrs.Size(); i++ {
		attr := attrs.Get(i)
		traitType, ok := stringField(attr, "trait_type")
		if !ok {
			continue
		}
		value, ok := stringField(attr, "value")
		if !ok {
			continue
		}
		switch {
		case traitType == traitBody && value == valueQueen:
			isQueen = true
		case traitType == traitWings && value == valueWorker:
			isWorker = true
		}
	}

	switch {
	case isQueen:
		return model.ItemQueen
	case isWorker:
		return model.ItemWorker
	default:
		return model.ItemDrone
	}
}

func attributes(metadata []byte) jsoniter.Any {
	if len(metadata) == 0 {
		return nil
	}
	if attrs := jsonx.Get(metadata, "reference_blob", "attributes"); attrs.ValueType() == jsoniter.ArrayValue {
		return attrs
	}
	if attrs := jsonx.Get(metadata, "attributes"); attrs.ValueType() == jsoniter.ArrayValue {
		return attrs
	}
	return nil
}

func stringField(obj jsoniter.Any, key string) (string, bool) {
	if obj.ValueType() != jsoniter.ObjectValue {
		return "", false
	}
	v := obj.Get(key)
	if v.ValueType() != jsoniter.StringValue {
		return "", false
	}
	return v.ToString(), true
}
