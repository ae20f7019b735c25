// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcpomop

// Tool arguments arrive as map[string]interface{} decoded from JSON, so
// numbers are always float64 and arrays are always []interface{}. These
// helpers centralize that conversion and the InvalidRequest it yields
// when a required field is absent or the wrong shape.

func argString(args map[string]interface{}, key string, required bool) (string, error) {
	v, ok := args[key]
	if !ok {
		if required {
			return "", invalidRequest("%q is required", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidRequest("%q must be a string", key)
	}
	return s, nil
}

func argBool(args map[string]interface{}, key string, def bool) (bool, error) {
	v, ok := args[key]
	if !ok {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalidRequest("%q must be a boolean", key)
	}
	return b, nil
}

func argInt(args map[string]interface{}, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok {
		return def, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, invalidRequest("%q must be a number", key)
	}
	return int(f), nil
}

func argInt64Slice(args map[string]interface{}, key string, required bool) ([]int64, error) {
	v, ok := args[key]
	if !ok {
		if required {
			return nil, invalidRequest("%q is required", key)
		}
		return nil, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, invalidRequest("%q must be an array of integers", key)
	}
	ids := make([]int64, 0, len(raw))
	for _, item := range raw {
		f, ok := item.(float64)
		if !ok {
			return nil, invalidRequest("%q must contain only integers", key)
		}
		ids = append(ids, int64(f))
	}
	return ids, nil
}

func argInt64(args map[string]interface{}, key string, required bool) (int64, error) {
	v, ok := args[key]
	if !ok {
		if required {
			return 0, invalidRequest("%q is required", key)
		}
		return 0, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, invalidRequest("%q must be a number", key)
	}
	return int64(f), nil
}
