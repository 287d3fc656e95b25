package gguf

// GGUF container format constants.
// Reference: https://github.com/ggerganov/ggml/blob/master/docs/gguf.md

const (
	// Magic number "GGUF" in little-endian
	Magic uint32 = 0x46554747

	// Default tensor data alignment
	DefaultAlignment uint32 = 32
)

// ValueType is the type tag of a metadata value.
type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

// TensorType is the element dtype tag of a tensor descriptor. The parser
// records the tag without validating the tensor payload.
type TensorType uint32

const (
	TensorF32  TensorType = 0
	TensorF16  TensorType = 1
	TensorQ4_0 TensorType = 2
	TensorQ4_1 TensorType = 3
	TensorQ5_0 TensorType = 6
	TensorQ5_1 TensorType = 7
	TensorQ8_0 TensorType = 8
	TensorQ8_1 TensorType = 9
	TensorQ2K  TensorType = 10
	TensorQ3K  TensorType = 11
	TensorQ4K  TensorType = 12
	TensorQ5K  TensorType = 13
	TensorQ6K  TensorType = 14
	TensorQ8K  TensorType = 15
	TensorBF16 TensorType = 30
)

func (t TensorType) String() string {
	switch t {
	case TensorF32:
		return "F32"
	case TensorF16:
		return "F16"
	case TensorQ4_0:
		return "Q4_0"
	case TensorQ4_1:
		return "Q4_1"
	case TensorQ5_0:
		return "Q5_0"
	case TensorQ5_1:
		return "Q5_1"
	case TensorQ8_0:
		return "Q8_0"
	case TensorQ8_1:
		return "Q8_1"
	case TensorQ2K:
		return "Q2_K"
	case TensorQ3K:
		return "Q3_K"
	case TensorQ4K:
		return "Q4_K"
	case TensorQ5K:
		return "Q5_K"
	case TensorQ6K:
		return "Q6_K"
	case TensorQ8K:
		return "Q8_K"
	case TensorBF16:
		return "BF16"
	default:
		return "UNKNOWN"
	}
}

// Header is the fixed-size GGUF file header.
type Header struct {
	Magic           uint32
	Version         uint32
	TensorCount     uint64
	MetadataKVCount uint64
}

// TensorInfo is one entry of the tensor directory. Only the directory is
// parsed; tensor data itself is never touched here.
type TensorInfo struct {
	Name       string
	NDims      uint32
	Dimensions []uint64
	Type       TensorType
	Offset     uint64 // offset from the start of the tensor data section
}

// NumElements returns the total number of elements in the tensor.
func (t *TensorInfo) NumElements() uint64 {
	if len(t.Dimensions) == 0 {
		return 0
	}
	n := uint64(1)
	for _, d := range t.Dimensions {
		n *= d
	}
	return n
}

// Well-known metadata keys.
const (
	KeyGeneralArchitecture = "general.architecture"
	KeyGeneralName         = "general.name"
	KeyGeneralFileType     = "general.file_type"
	KeyGeneralAlignment    = "general.alignment"

	// Architecture-prefixed keys (prepend the architecture name).
	KeyContextLength        = ".context_length"
	KeyEmbeddingLength      = ".embedding_length"
	KeyBlockCount           = ".block_count"
	KeyFeedForwardLength    = ".feed_forward_length"
	KeyAttentionHeadCount   = ".attention.head_count"
	KeyAttentionHeadCountKV = ".attention.head_count_kv"
	KeyAttentionNormEps     = ".attention.layer_norm_rms_epsilon"
	KeyRopeFreqBase         = ".rope.freq_base"

	KeyTokenizerModel  = "tokenizer.ggml.model"
	KeyTokenizerTokens = "tokenizer.ggml.tokens"
	KeyTokenizerBOSID  = "tokenizer.ggml.bos_token_id"
	KeyTokenizerEOSID  = "tokenizer.ggml.eos_token_id"
)
