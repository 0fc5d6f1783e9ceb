//go:build !(amd64 || arm64 || ppc64le || riscv64 || loong64 || mips64le || wasm)

package simd

func init() {
	matchImpl = matchEmulated
	implName = "emulated"
}
