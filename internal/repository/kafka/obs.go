package kafka

import "github.com/segmentio/kafka-go"

// mapCarrierHeaders adapts kafka message headers to the OTel TextMapCarrier.
type mapCarrierHeaders map[string]string

func (m mapCarrierHeaders) Get(key string) string { return m[key] }

func (m mapCarrierHeaders) Set(key, value string) { m[key] = value }

func (m mapCarrierHeaders) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func (m mapCarrierHeaders) ToKafka() []kafka.Header {
	out := make([]kafka.Header, 0, len(m))
	for k, v := range m {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
