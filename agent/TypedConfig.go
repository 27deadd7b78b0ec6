package agent

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Registered types with the package. Once a Type has been registered
// with this map, a TypedConfig with that type can be unmarshalled.
//
// No Type's are registered wtih this package upon initialization.
// Each separate package is in charge of registering its Type with
// the package separately to avoid circular imports.
var registeredTypes = make(map[Type]reflect.Type)

// Register registers an agent's Type with a concrete Config type so
// that upon deserialization of a TypedConfig, Configs of type
// agentType are deserialized into the concrete type. Register panics
// if agentType is already registered.
func Register(agentType Type, config Config) {
	if _, ok := registeredTypes[agentType]; ok {
		panic(fmt.Sprintf("register: type %v already registered",
			agentType))
	}
	registeredTypes[agentType] = reflect.TypeOf(config)
}

// TypedConfig implements functionality for typing a Config. In this
// way, a Config can explicitly have its type stored so that when
// deserializing the Config, we can deserialize it into its concrete
// type without knowing beforehand or declaring beforehand a variable
// of its concrete type.
type TypedConfig struct {
	Type
	Config
}

// NewTypedConfig types the argument Config and returns it as a
// TypedConfig which explicitly holds its Type.
func NewTypedConfig(c Config) TypedConfig {
	return TypedConfig{Type: c.Type(), Config: c}
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (t *TypedConfig) UnmarshalJSON(data []byte) error {
	config, typeName, err := unmarshalConfig(data, "Type", "Config")
	if err != nil {
		return fmt.Errorf("unmarshalJSON: %v", err)
	}

	t.Type = typeName
	t.Config = config
	return nil
}

// unmarshalConfig uses reflection to unmarshall a Config into its
// concrete type. Both the Config and its Type are returned.
func unmarshalConfig(data []byte, typeJSONField,
	valueJSONField string) (Config, Type, error) {
	m := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, "", err
	}

	var typeName Type
	if err := json.Unmarshal(m[typeJSONField], &typeName); err != nil {
		return nil, "", fmt.Errorf("could not read type: %v", err)
	}

	ty, found := registeredTypes[typeName]
	if !found {
		return nil, "", fmt.Errorf("unregistered agent type %q", typeName)
	}

	// Registered types may be either structs or pointers to structs
	var value reflect.Value
	if ty.Kind() == reflect.Ptr {
		value = reflect.New(ty.Elem())
	} else {
		value = reflect.New(ty)
	}

	if raw, ok := m[valueJSONField]; ok {
		if err := json.Unmarshal(raw, value.Interface()); err != nil {
			return nil, "", err
		}
	}

	if ty.Kind() != reflect.Ptr {
		value = value.Elem()
	}
	config, ok := value.Interface().(Config)
	if !ok {
		return nil, "", fmt.Errorf("type %v does not implement Config", ty)
	}
	return config, typeName, nil
}
