package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type Kind int

const (
	KindValue Kind = iota
	KindImage
	KindSequence
)

// FeatureType is the declared type of one column.
type FeatureType struct {
	Kind  Kind
	DType string
	Inner *FeatureType
}

func Value(dtype string) FeatureType {
	return FeatureType{Kind: KindValue, DType: dtype}
}

func Image() FeatureType {
	return FeatureType{Kind: KindImage}
}

func Sequence(inner FeatureType) FeatureType {
	return FeatureType{Kind: KindSequence, Inner: &inner}
}

func (featureType FeatureType) String() string {
	switch featureType.Kind {
	case KindValue:
		return "Value(" + featureType.DType + ")"
	case KindImage:
		return "Image()"
	case KindSequence:
		if featureType.Inner == nil {
			return "Sequence(?)"
		}
		return "Sequence(" + featureType.Inner.String() + ")"
	default:
		return "Unknown"
	}
}

func (featureType FeatureType) hubValue() map[string]any {
	switch featureType.Kind {
	case KindImage:
		return map[string]any{"_type": "Image"}
	case KindSequence:
		var inner map[string]any
		if featureType.Inner != nil {
			inner = featureType.Inner.hubValue()
		}
		return map[string]any{"feature": inner, "_type": "Sequence"}
	default:
		return map[string]any{"dtype": featureType.DType, "_type": "Value"}
	}
}

type Feature struct {
	Name string
	Type FeatureType
}

// Features is an ordered schema; column order follows slice order.
type Features []Feature

func RestoreFeatures() Features {
	return Features{
		{Name: ColumnID, Type: Value("string")},
		{Name: ColumnControlImages, Type: Sequence(Image())},
		{Name: ColumnControlMask, Type: Image()},
		{Name: ColumnTargetImage, Type: Image()},
		{Name: ColumnPrompt, Type: Value("string")},
	}
}

func (features Features) Names() []string {
	names := make([]string, 0, len(features))
	for _, feature := range features {
		names = append(names, feature.Name)
	}
	return names
}

func (features Features) Lookup(name string) (FeatureType, bool) {
	for _, feature := range features {
		if feature.Name == name {
			return feature.Type, true
		}
	}
	return FeatureType{}, false
}

// HubJSON renders the schema as the JSON object the hub stores in parquet
// metadata, keeping column order.
func (features Features) HubJSON() ([]byte, error) {
	var buffer bytes.Buffer
	buffer.WriteByte('{')
	for index, feature := range features {
		if index > 0 {
			buffer.WriteByte(',')
		}
		name, nameError := json.Marshal(feature.Name)
		if nameError != nil {
			return nil, fmt.Errorf("marshal feature name: %w", nameError)
		}
		value, valueError := json.Marshal(feature.Type.hubValue())
		if valueError != nil {
			return nil, fmt.Errorf("marshal feature %s: %w", feature.Name, valueError)
		}
		buffer.Write(name)
		buffer.WriteByte(':')
		buffer.Write(value)
	}
	buffer.WriteByte('}')
	return buffer.Bytes(), nil
}
