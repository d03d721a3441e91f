package cpu

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// humanReadableState is the JSON-serializable snapshot of CPU control state.
type humanReadableState struct {
	Regs     map[string]uint32 `json:"regs"`
	PC       uint32            `json:"pc"`
	Halted   bool              `json:"halted"`
	ExitCode int32             `json:"exit_code"`
	Steps    uint64            `json:"steps"`
	Memory   int               `json:"memory_size"`
}

func (c *CPU) snapshot() humanReadableState {
	state := humanReadableState{
		Regs:     make(map[string]uint32, len(c.Regs)),
		PC:       c.PC,
		Halted:   c.Halted,
		ExitCode: c.ExitCode,
		Steps:    c.Steps,
		Memory:   len(c.Memory),
	}
	for i, v := range c.Regs {
		state.Regs[RegName(uint32(i))] = v
	}
	return state
}

// DumpState writes the registers and control state as indented JSON.
func (c *CPU) DumpState(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c.snapshot()); err != nil {
		return fmt.Errorf("marshal cpu_state: %w", err)
	}
	return nil
}

// HibernateToBytes serialises the machine into an in-memory ZIP archive
// holding cpu_state.json and memory.bin.
func (c *CPU) HibernateToBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	jsonData, err := json.MarshalIndent(c.snapshot(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal cpu_state: %w", err)
	}
	if err := writeZipEntry(zw, "cpu_state.json", jsonData); err != nil {
		return nil, err
	}
	if err := writeZipEntry(zw, "memory.bin", c.Memory); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

// RestoreFromBytes applies an archive produced by HibernateToBytes. The
// memory size is taken from the archive.
func (c *CPU) RestoreFromBytes(data []byte) error {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	fileMap := make(map[string]*zip.File, len(r.File))
	for _, f := range r.File {
		fileMap[f.Name] = f
	}

	jsonData, err := readZipEntry(fileMap, "cpu_state.json")
	if err != nil {
		return err
	}
	var state humanReadableState
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return fmt.Errorf("unmarshal cpu_state: %w", err)
	}
	mem, err := readZipEntry(fileMap, "memory.bin")
	if err != nil {
		return err
	}
	if len(mem) != state.Memory {
		return fmt.Errorf("memory.bin has %d bytes, state says %d", len(mem), state.Memory)
	}

	var regs [32]uint32
	for name, v := range state.Regs {
		r, ok := RegNumber(name)
		if !ok {
			return fmt.Errorf("unknown register %q in cpu_state", name)
		}
		regs[r] = v
	}
	regs[RegZero] = 0

	c.Regs = regs
	c.PC = state.PC
	c.Halted = state.Halted
	c.ExitCode = state.ExitCode
	c.Steps = state.Steps
	c.Memory = mem
	c.in = nil
	return nil
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func readZipEntry(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("missing %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
