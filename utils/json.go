package utils

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
)

var jsonBufPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 1024))
	},
}

func Marshal(data interface{}) ([]byte, error) {
	buf := jsonBufPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		if buf.Cap() < 16*1024 {
			jsonBufPool.Put(buf)
		}
	}()

	encoder := sonic.ConfigDefault.NewEncoder(buf)
	if err := encoder.Encode(data); err != nil {
		return nil, err
	}

	// Encode appends a trailing newline; cache keys and wire bodies must not
	// carry it.
	raw := bytes.TrimRight(buf.Bytes(), "\n")
	result := make([]byte, len(raw))
	copy(result, raw)
	return result, nil
}

func Unmarshal[T any](data []byte, target *T) error {
	return sonic.ConfigDefault.Unmarshal(data, target)
}

func UnmarshalConfig[T any](config interface{}, target *T) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	if typed, ok := config.(*T); ok {
		*target = *typed
		return nil
	}

	configBytes, err := sonic.ConfigDefault.Marshal(config)
	if err != nil {
		return err
	}

	return sonic.ConfigDefault.Unmarshal(configBytes, target)
}
