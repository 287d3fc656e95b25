//go:build windows

package gguf

import (
	"os"
	"syscall"
	"unsafe"
)

var (
	kernel32           = syscall.NewLazyDLL("kernel32.dll")
	createFileMappingW = kernel32.NewProc("CreateFileMappingW")
	mapViewOfFile      = kernel32.NewProc("MapViewOfFile")
	unmapViewOfFile    = kernel32.NewProc("UnmapViewOfFile")
	closeHandle        = kernel32.NewProc("CloseHandle")
)

const (
	pageReadonly = 0x02
	fileMapRead  = 0x04
)

// MapFile memory-maps a file read-only on Windows.
func MapFile(f *os.File) ([]byte, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := stat.Size()
	if size == 0 {
		return nil, nil
	}

	sizeLow := uint32(size)
	sizeHigh := uint32(size >> 32)
	handle, _, err := createFileMappingW.Call(
		f.Fd(), 0, pageReadonly,
		uintptr(sizeHigh), uintptr(sizeLow), 0,
	)
	if handle == 0 {
		return nil, err
	}

	addr, _, err := mapViewOfFile.Call(handle, fileMapRead, 0, 0, uintptr(size))
	if addr == 0 {
		closeHandle.Call(handle)
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size)), nil
}

// Unmap releases a mapping created by MapFile.
func Unmap(data []byte) error {
	if data == nil {
		return nil
	}
	ret, _, err := unmapViewOfFile.Call(uintptr(unsafe.Pointer(&data[0])))
	if ret == 0 {
		return err
	}
	return nil
}
